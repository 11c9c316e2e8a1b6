package crypt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const nonceSize = 24

// ErrDecryptFailed 密文校验失败（密钥不匹配或数据被篡改）
var ErrDecryptFailed = errors.New("crypt: decryption failed")

// Keypair curve25519 密钥对，从 32 字节种子派生
type Keypair struct {
	Public  [32]byte
	private [32]byte
}

// KeypairFromSeed 从 hex 种子派生密钥对
func KeypairFromSeed(seedHex string) (*Keypair, error) {
	raw, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("seed is not hex encoded: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("seed must be 32 bytes, got %d", len(raw))
	}
	kp := &Keypair{}
	copy(kp.private[:], raw)
	curve25519.ScalarBaseMult(&kp.Public, &kp.private)
	return kp, nil
}

// Encryptor 载荷加密器
// 发送方密钥加密给接收方公钥；本流水线自收自发（recipient = 自身公钥），
// 持有种子的一方随时可解密恢复。这只是静态数据混淆，不是访问控制边界。
type Encryptor struct {
	sender    *Keypair
	recipient [32]byte
}

// NewEncryptor 创建加密器
func NewEncryptor(sender *Keypair, recipientPub [32]byte) *Encryptor {
	return &Encryptor{sender: sender, recipient: recipientPub}
}

// NewSelfEncryptor 创建自寻址加密器（加密给自己的公钥）
func NewSelfEncryptor(sender *Keypair) *Encryptor {
	return NewEncryptor(sender, sender.Public)
}

// Encrypt 加密载荷，随机 nonce 置于密文头部
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return box.Seal(nonce[:], plaintext, &nonce, &e.recipient, &e.sender.private), nil
}

// Decrypt 解密来自 senderPub 的密文
func Decrypt(blob []byte, senderPub [32]byte, recipient *Keypair) ([]byte, error) {
	if len(blob) < nonceSize+box.Overhead {
		return nil, ErrDecryptFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	plaintext, ok := box.Open(nil, blob[nonceSize:], &nonce, &senderPub, &recipient.private)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
