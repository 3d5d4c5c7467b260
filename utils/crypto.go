package utils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// PublicKeyBytesToAddress derives the EVM address of a secp256k1 public key given in compressed
// (33 bytes) or uncompressed (65 bytes) form.
func PublicKeyBytesToAddress(publicKey []byte) (common.Address, error) {
	switch len(publicKey) {
	case 65:
	case 33:
		pub, err := crypto.DecompressPubkey(publicKey)
		if err != nil {
			return common.Address{}, err
		}
		publicKey = crypto.FromECDSAPub(pub)
	default:
		return common.Address{}, fmt.Errorf("invalid public key length %d", len(publicKey))
	}

	hash := sha3.NewLegacyKeccak256()
	hash.Write(publicKey[1:]) // drop the 0x04 prefix

	return common.BytesToAddress(hash.Sum(nil)[12:]), nil
}
