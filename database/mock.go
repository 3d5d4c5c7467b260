package database

import "github.com/sisu-network/renbridge/types"

type MockDb struct {
	InitFunc                      func() error
	CloseFunc                     func() error
	SaveSubmissionFunc            func(key, kind string, request []byte) error
	LoadSubmissionFunc            func(key string) (*Submission, error)
	LoadUnfinishedSubmissionsFunc func() ([]*Submission, error)
	SaveProgressFunc              func(key string, progress types.ChainTransactionProgress) error
	LoadProgressFunc              func(key, chain string) (*types.ChainTransactionProgress, error)
	FindTransactionFunc           func(key, chain string) (*types.ChainTransaction, error)
}

func (mock *MockDb) Init() error {
	if mock.InitFunc != nil {
		return mock.InitFunc()
	}

	return nil
}

func (mock *MockDb) Close() error {
	if mock.CloseFunc != nil {
		return mock.CloseFunc()
	}

	return nil
}

func (mock *MockDb) SaveSubmission(key, kind string, request []byte) error {
	if mock.SaveSubmissionFunc != nil {
		return mock.SaveSubmissionFunc(key, kind, request)
	}

	return nil
}

func (mock *MockDb) LoadSubmission(key string) (*Submission, error) {
	if mock.LoadSubmissionFunc != nil {
		return mock.LoadSubmissionFunc(key)
	}

	return nil, nil
}

func (mock *MockDb) LoadUnfinishedSubmissions() ([]*Submission, error) {
	if mock.LoadUnfinishedSubmissionsFunc != nil {
		return mock.LoadUnfinishedSubmissionsFunc()
	}

	return nil, nil
}

func (mock *MockDb) SaveProgress(key string, progress types.ChainTransactionProgress) error {
	if mock.SaveProgressFunc != nil {
		return mock.SaveProgressFunc(key, progress)
	}

	return nil
}

func (mock *MockDb) LoadProgress(key, chain string) (*types.ChainTransactionProgress, error) {
	if mock.LoadProgressFunc != nil {
		return mock.LoadProgressFunc(key, chain)
	}

	return nil, nil
}

func (mock *MockDb) FindTransaction(key, chain string) (*types.ChainTransaction, error) {
	if mock.FindTransactionFunc != nil {
		return mock.FindTransactionFunc(key, chain)
	}

	return nil, nil
}
