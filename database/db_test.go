package database

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/types"
	"github.com/stretchr/testify/require"
)

func getTestDb(t *testing.T) Database {
	cfg := config.Config{
		DbHost:   "127.0.0.1",
		DbSchema: "renbridge",
		InMemory: true,
	}
	dbInstance := NewDb(&cfg)
	err := dbInstance.Init()
	require.Nil(t, err)

	t.Cleanup(func() {
		dbInstance.Close()
	})

	return dbInstance
}

func TestDefaultDatabase_Progress(t *testing.T) {
	db := getTestDb(t)
	hash := common.HexToHash("0x1234")

	progress, err := db.LoadProgress("key0", "ethereum")
	require.Nil(t, err)
	require.Nil(t, progress)

	err = db.SaveProgress("key0", types.ChainTransactionProgress{
		Chain:       "ethereum",
		Status:      types.ChainTransactionStatusConfirming,
		Target:      2,
		Transaction: types.TxHashToChainTransaction("ethereum", hash),
	})
	require.Nil(t, err)

	err = db.SaveProgress("key0", types.ChainTransactionProgress{
		Chain:         "ethereum",
		Status:        types.ChainTransactionStatusDone,
		Confirmations: 2,
		Target:        2,
		Transaction:   types.TxHashToChainTransaction("ethereum", hash),
		Replaced:      types.TxHashToChainTransaction("ethereum", common.HexToHash("0x99")),
	})
	require.Nil(t, err)

	progress, err = db.LoadProgress("key0", "ethereum")
	require.Nil(t, err)
	require.Equal(t, types.ChainTransactionStatusDone, progress.Status)
	require.Equal(t, 2, progress.Confirmations)
	require.Equal(t, 2, progress.Target)
	require.Equal(t, types.TxHashToChainTransaction("ethereum", hash), progress.Transaction)
	require.Equal(t, common.HexToHash("0x99").Hex(), progress.Replaced.TxidFormatted)

	tx, err := db.FindTransaction("key0", "ethereum")
	require.Nil(t, err)
	require.Equal(t, hash.Hex(), tx.TxidFormatted)
}

func TestDefaultDatabase_RenVMResponse(t *testing.T) {
	db := getTestDb(t)

	err := db.SaveProgress("key1", types.ChainTransactionProgress{
		Chain:        "RenVM",
		Status:       types.ChainTransactionStatusReverted,
		RevertReason: "bad signature",
		Response: &types.RenVMTxWithStatus{
			Tx:       types.RenVMTransaction{Hash: "abc", Out: &types.RenVMTxOutput{Revert: "bad signature"}},
			TxStatus: types.TxStatusReverted,
		},
	})
	require.Nil(t, err)

	progress, err := db.LoadProgress("key1", "RenVM")
	require.Nil(t, err)
	require.Equal(t, "bad signature", progress.RevertReason)
	require.Equal(t, types.TxStatusReverted, progress.Response.TxStatus)
	require.Equal(t, "bad signature", progress.Response.RevertReason())
}

func TestDefaultDatabase_FindTransaction(t *testing.T) {
	db := getTestDb(t)

	tx, err := db.FindTransaction("missing", "ethereum")
	require.Nil(t, err)
	require.Nil(t, tx)

	// Ready without a transaction.
	err = db.SaveProgress("key2", types.ChainTransactionProgress{Chain: "ethereum"})
	require.Nil(t, err)
	tx, err = db.FindTransaction("key2", "ethereum")
	require.Nil(t, err)
	require.Nil(t, tx)

	// Done without a transaction.
	err = db.SaveProgress("key3", types.ChainTransactionProgress{Chain: "ethereum", Status: types.ChainTransactionStatusDone})
	require.Nil(t, err)
	tx, err = db.FindTransaction("key3", "ethereum")
	require.Nil(t, err)
	require.Equal(t, "", tx.TxidFormatted)
}

func TestDefaultDatabase_Submissions(t *testing.T) {
	db := getTestDb(t)

	require.Nil(t, db.SaveSubmission("a", SubmissionKindEvm, []byte(`{"key":"a"}`)))
	require.Nil(t, db.SaveSubmission("b", SubmissionKindRenVM, []byte(`{"key":"b"}`)))
	// Saving twice keeps the first request.
	require.Nil(t, db.SaveSubmission("a", SubmissionKindEvm, []byte(`{"key":"other"}`)))

	submission, err := db.LoadSubmission("a")
	require.Nil(t, err)
	require.Equal(t, `{"key":"a"}`, string(submission.Request))

	require.Nil(t, db.SaveProgress("a", types.ChainTransactionProgress{Chain: "ethereum", Status: types.ChainTransactionStatusDone}))
	require.Nil(t, db.SaveProgress("b", types.ChainTransactionProgress{Chain: "RenVM", Status: types.ChainTransactionStatusConfirming}))

	unfinished, err := db.LoadUnfinishedSubmissions()
	require.Nil(t, err)
	require.Len(t, unfinished, 1)
	require.Equal(t, "b", unfinished[0].Key)
	require.Equal(t, SubmissionKindRenVM, unfinished[0].Kind)
}

func TestRebind(t *testing.T) {
	d := &DefaultDatabase{driver: config.DbDriverPostgres}
	require.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", d.rebind("SELECT a FROM t WHERE b = ? AND c = ?"))

	d = &DefaultDatabase{driver: config.DbDriverMysql}
	require.Equal(t, "SELECT a FROM t WHERE b = ?", d.rebind("SELECT a FROM t WHERE b = ?"))
}
