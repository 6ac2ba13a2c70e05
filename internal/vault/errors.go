package vault

import "errors"

var (
	// ErrUnknownManifestVersion means the manifest names a schema version
	// this build does not understand.
	ErrUnknownManifestVersion = errors.New("unknown manifest version")

	// ErrMissingPasskey means the manifest has encrypted entries and no
	// passkey was given.
	ErrMissingPasskey = errors.New("passkey is required to decrypt the manifest")

	// ErrUnexpectedPasskey means a passkey was given for an unencrypted
	// manifest. Proceeding would encrypt the secret files, which is almost
	// certainly not what the user meant, so the migration refuses.
	ErrUnexpectedPasskey = errors.New("passkey provided but the manifest is not encrypted")
)
