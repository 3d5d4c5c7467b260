package client

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/types"
)

const (
	RETRY_TIME = 10 * time.Second
)

// A client that connects to the gateway server.
type Client interface {
	TryDial()
	GetVersion() (string, error)
	PostProgress(update *types.ProgressUpdate) error
}

var (
	ErrGatewayNotConnected = errors.New("gateway server is not connected")
)

type DefaultClient struct {
	client    *rpc.Client
	url       string
	connected bool

	retryTime time.Duration
}

func NewClient(url string) Client {
	return &DefaultClient{
		url:       url,
		retryTime: RETRY_TIME,
	}
}

func (c *DefaultClient) TryDial() {
	log.Info("Trying to dial gateway server")

	for {
		log.Info("Dialing...", c.url)
		var err error
		c.client, err = rpc.DialContext(context.Background(), c.url)
		if err != nil {
			log.Error("Cannot connect to gateway server err = ", err)
			time.Sleep(c.retryTime)
			continue
		}

		_, err = c.GetVersion()
		if err != nil {
			log.Error("Cannot get gateway version err = ", err)
			time.Sleep(c.retryTime)
			continue
		}

		c.connected = true
		break
	}

	log.Info("Gateway server is connected")
}

func (c *DefaultClient) GetVersion() (string, error) {
	if c.client == nil {
		return "", ErrGatewayNotConnected
	}

	var version string
	err := c.client.CallContext(context.Background(), &version, "gateway_version")
	return version, err
}

func (c *DefaultClient) PostProgress(update *types.ProgressUpdate) error {
	if !c.connected {
		return ErrGatewayNotConnected
	}

	log.Verbose("Posting progress to gateway, key = ", update.Key, " progress = ", update.Progress)

	var r string
	err := c.client.CallContext(context.Background(), &r, "gateway_postProgress", update)
	if err != nil {
		log.Error("Cannot post progress to gateway, key = ", update.Key, " err = ", err)
		return err
	}

	return nil
}
