package crypto

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/securestream/limits"
)

// tagConstant is the fifth byte of every tag block.
const tagConstant = 0x01

// EncodeTag writes the tag for streamNumber into the first limits.TagLength
// bytes of tag: a single AES block over uint32_be(streamNumber) || 0x01,
// zero-filled, under tagKey.
func EncodeTag(tag []byte, tagKey *SecretKey, streamNumber uint32) error {
	if len(tag) < limits.TagLength {
		return fmt.Errorf("%w: tag buffer must hold %d bytes", ErrInvalidArgument, limits.TagLength)
	}
	block := tag[:limits.TagLength]
	for i := range block {
		block[i] = 0
	}
	binary.BigEndian.PutUint32(block, streamNumber)
	block[4] = tagConstant

	return tagKey.use(func(k []byte) error {
		c, err := aes.NewCipher(k)
		if err != nil {
			return fmt.Errorf("failed to create tag cipher: %w", err)
		}
		c.Encrypt(block, block)
		return nil
	})
}
