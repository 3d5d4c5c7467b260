package client

import "github.com/sisu-network/renbridge/types"

type MockClient struct {
	TryDialFunc      func()
	GetVersionFunc   func() (string, error)
	PostProgressFunc func(update *types.ProgressUpdate) error
}

func (c *MockClient) TryDial() {
	if c.TryDialFunc != nil {
		c.TryDialFunc()
	}
}

func (c *MockClient) GetVersion() (string, error) {
	if c.GetVersionFunc != nil {
		return c.GetVersionFunc()
	}

	return "", nil
}

func (c *MockClient) PostProgress(update *types.ProgressUpdate) error {
	if c.PostProgressFunc != nil {
		return c.PostProgressFunc(update)
	}

	return nil
}
