package configwatch_test

import (
	"errors"
	"fmt"

	"homelink-publisher/internal/configwatch"
)

// fakeStore 仅用于单元测试（内存缓存）
type fakeStore struct {
	sum       string
	blob      []byte
	plaintext []byte

	sumErr  error
	loadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) Sum() (string, error) {
	if f.sumErr != nil {
		return "", f.sumErr
	}
	if f.sum == "" {
		return "", configwatch.ErrCacheMiss
	}
	return f.sum, nil
}

func (f *fakeStore) Load() ([]byte, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.blob == nil {
		return nil, configwatch.ErrCacheMiss
	}
	return f.blob, nil
}

func (f *fakeStore) Store(sum string, plaintext, blob []byte) error {
	f.sum = sum
	f.plaintext = plaintext
	f.blob = blob
	return nil
}

// countingEncryptor 记录加密次数的确定性加密器
type countingEncryptor struct {
	calls int
	err   error
}

func (e *countingEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.calls++
	return []byte(fmt.Sprintf("enc[%s]", plaintext)), nil
}

var errBroken = errors.New("broken")
