// Пакет blob — загрузка объектов в S3-совместимое хранилище.
// Используется для неизменяемых квитанций согласий.
package blob

import (
	"context"
	"fmt"
	"sync"
)

// Uploader — запись объекта по ключу.
type Uploader interface {
	// Put сохраняет data под ключом key. Повторная запись того же
	// ключа перезаписывает объект.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// MemoryUploader — Uploader в память. Только для тестов.
type MemoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailNext — если true, следующий вызов Put вернёт ошибку
	FailNext bool
}

// NewMemoryUploader создаёт пустой MemoryUploader.
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{objects: make(map[string][]byte)}
}

// Put реализует Uploader.
func (u *MemoryUploader) Put(_ context.Context, key string, data []byte, _ string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.FailNext {
		u.FailNext = false
		return fmt.Errorf("memory uploader: принудительная ошибка записи")
	}

	u.objects[key] = append([]byte(nil), data...)
	return nil
}

// Get возвращает объект по ключу (для проверок в тестах).
func (u *MemoryUploader) Get(key string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.objects[key]
	return data, ok
}

// Len возвращает число сохранённых объектов.
func (u *MemoryUploader) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.objects)
}
