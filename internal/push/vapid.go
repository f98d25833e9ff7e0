package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/convo/internal/logger"
)

// VAPIDKeys — пара ключей сервера приложений для Web Push.
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

func (k *VAPIDKeys) complete() bool {
	return k != nil && k.PublicKey != "" && k.PrivateKey != ""
}

const defaultVAPIDKeysPath = "config/vapid.json"

// ResolveVAPIDKeys выбирает ключи по порядку: VAPID_PUBLIC_KEY/VAPID_PRIVATE_KEY из окружения,
// затем файл path, затем генерирует новую пару и сохраняет её в path.
// Ключи нельзя менять после выдачи подписок: старые подписки браузеров станут недействительны.
func ResolveVAPIDKeys(path string) (*VAPIDKeys, error) {
	env := &VAPIDKeys{PublicKey: os.Getenv("VAPID_PUBLIC_KEY"), PrivateKey: os.Getenv("VAPID_PRIVATE_KEY")}
	if env.complete() {
		return env, nil
	}
	return EnsureVAPIDKeys(path)
}

// EnsureVAPIDKeys читает ключи из файла; если файла нет или он неполный — генерирует и сохраняет.
// Пустой path — VAPID_KEYS_FILE или config/vapid.json.
func EnsureVAPIDKeys(path string) (*VAPIDKeys, error) {
	if path == "" {
		path = os.Getenv("VAPID_KEYS_FILE")
	}
	if path == "" {
		path = defaultVAPIDKeysPath
	}
	keys, err := readVAPIDKeys(path)
	switch {
	case err == nil && keys.complete():
		return keys, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		logger.Errorf("push: %s не читается (%v), генерируем новые ключи", path, err)
	}

	// webpush возвращает пару в порядке (private, public).
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, fmt.Errorf("generate vapid keys: %w", err)
	}
	keys = &VAPIDKeys{PublicKey: pub, PrivateKey: priv}
	if err := writeVAPIDKeys(path, keys); err != nil {
		// Ключи живут до перезапуска; после него подписки придётся выдать заново.
		logger.Errorf("push: VAPID-ключи не сохранены в %s: %v", path, err)
		return keys, nil
	}
	logger.Infof("push: VAPID-ключи сгенерированы и сохранены в %s", path)
	return keys, nil
}

func readVAPIDKeys(path string) (*VAPIDKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys VAPIDKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &keys, nil
}

func writeVAPIDKeys(path string, keys *VAPIDKeys) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
