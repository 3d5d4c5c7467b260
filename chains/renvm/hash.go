package renvm

import (
	"crypto/sha256"

	"github.com/sisu-network/renbridge/pack"
	"github.com/sisu-network/renbridge/types"
	"github.com/sisu-network/renbridge/utils"
)

const DefaultVersion = "1"

// GenerateTransactionHash returns the content hash of a RenVM transaction:
// sha256(len|version || len|selector || pack(in)).
func GenerateTransactionHash(version, selector string, in pack.TypedValue) ([]byte, error) {
	encoded, err := pack.Encode(in)
	if err != nil {
		return nil, err
	}

	hasher := sha256.New()
	hasher.Write(pack.EncodeString(version))
	hasher.Write(pack.EncodeString(selector))
	hasher.Write(encoded)

	return hasher.Sum(nil), nil
}

// NormalizeTransactionInput fills in the default version and the hash. An explicit hash that does
// not match the content fails with ErrCodeInvalidTxHash.
func NormalizeTransactionInput(tx types.TransactionInput) (types.TransactionInput, error) {
	if tx.Version == "" {
		tx.Version = DefaultVersion
	}

	hash, err := GenerateTransactionHash(tx.Version, tx.Selector, tx.In)
	if err != nil {
		return tx, types.WrapErrorWithCode(types.ErrCodeInvalidTxHash, err, "cannot hash transaction")
	}

	expected := utils.ToURLBase64(hash)
	if tx.Hash != "" && tx.Hash != expected {
		return tx, types.NewErrorWithCode(types.ErrCodeInvalidTxHash,
			"invalid hash (expected '%s', got '%s')", expected, tx.Hash)
	}
	tx.Hash = expected

	return tx, nil
}
