package vault

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/dmitrijs2005/steamguard/internal/cryptox"
)

// EntryLoader resolves one secret file into its decrypted JSON contents.
// params is nil for plaintext files; when set, the loader derives the key
// from the passkey and the params and decrypts. The migration engine treats
// loaders as opaque so tests can substitute fakes.
type EntryLoader interface {
	Load(path string, passkey []byte, params *EncryptionParams) ([]byte, error)
}

// FileLoader is the production EntryLoader, reading local files and using
// the authenticator file cipher for encrypted ones.
type FileLoader struct{}

func (FileLoader) Load(path string, passkey []byte, params *EncryptionParams) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	if params == nil {
		return data, nil
	}
	if len(passkey) == 0 {
		return nil, fmt.Errorf("secret file %s is encrypted but no passkey was given", path)
	}
	salt, iv, err := params.decode()
	if err != nil {
		return nil, err
	}
	key := cryptox.DeriveKey(passkey, salt, params.Iterations)
	plaintext, err := cryptox.Decrypt(string(data), key, iv)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret file: %w", err)
	}
	return plaintext, nil
}

// decode returns the raw salt and IV bytes.
func (p *EncryptionParams) decode() (salt, iv []byte, err error) {
	salt, err = base64.StdEncoding.DecodeString(p.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("decode encryption salt: %w", err)
	}
	iv, err = base64.StdEncoding.DecodeString(p.IV)
	if err != nil {
		return nil, nil, fmt.Errorf("decode encryption iv: %w", err)
	}
	return salt, iv, nil
}

func encodeB64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
