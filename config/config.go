package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

const (
	DbDriverMysql    = "mysql"
	DbDriverPostgres = "postgres"

	DefaultSubmitRetries = 4
	DefaultQueryRetries  = 1
	DefaultPollInterval  = 15 // seconds
	DefaultTarget        = 1
	DefaultBlockTime     = 12_000 // milliseconds
)

// EvmChain is the configuration of a destination EVM chain.
type EvmChain struct {
	Chain   string   `toml:"chain"`
	ChainId int64    `toml:"chain_id"`
	Rpcs    []string `toml:"rpcs"`

	// Number of confirmations required before a transaction is done.
	Target int `toml:"target"`

	// Expected block time in milliseconds. Used to pace receipt polling.
	BlockTime int `toml:"block_time"`

	// Maximum time in seconds a wait may take. 0 means wait until the target is reached.
	WaitTimeout int `toml:"wait_timeout"`

	// The wallet signer refuses to send when the suggested gas price is above this value. 0
	// disables the check.
	MaxGasPriceGwei float64 `toml:"max_gas_price_gwei"`

	// Gas limit used when neither the payload nor the caller sets one. 0 means estimate.
	GasLimit uint64 `toml:"gas_limit"`
}

type RenVM struct {
	Rpcs []string `toml:"rpcs"`

	// Number of alternating submit/query attempts made by Submit.
	SubmitRetries int `toml:"submit_retries"`

	// Number of attempts the RPC client makes for each single call.
	QueryRetries int `toml:"query_retries"`

	// Seconds between two polls while waiting for a transaction.
	PollInterval int `toml:"poll_interval"`
}

type Config struct {
	InMemory   bool   `toml:"in_memory"`
	DbDriver   string `toml:"db_driver"`
	DbHost     string `toml:"db_host"`
	DbPort     int    `toml:"db_port"`
	DbUsername string `toml:"db_username"`
	DbPassword string `toml:"db_password"`
	DbSchema   string `toml:"db_schema"`

	ServerPort       int    `toml:"server_port"`
	GatewayServerUrl string `toml:"gateway_server_url"`

	RenVM  RenVM               `toml:"renvm"`
	Chains map[string]EvmChain `toml:"chains"`
}

// Load reads a toml config file and fills in default values.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config file %s: %w", path, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DbDriver == "" {
		c.DbDriver = DbDriverMysql
	}
	if c.DbDriver != DbDriverMysql && c.DbDriver != DbDriverPostgres {
		return fmt.Errorf("unsupported db driver %s", c.DbDriver)
	}

	c.RenVM = c.RenVM.WithDefaults()

	for name, chain := range c.Chains {
		if chain.Chain == "" {
			chain.Chain = name
		}
		if len(chain.Rpcs) == 0 {
			return fmt.Errorf("chain %s does not have any rpc", name)
		}
		c.Chains[name] = chain.WithDefaults()
	}

	return nil
}

func (r RenVM) WithDefaults() RenVM {
	if r.SubmitRetries <= 0 {
		r.SubmitRetries = DefaultSubmitRetries
	}
	if r.QueryRetries <= 0 {
		r.QueryRetries = DefaultQueryRetries
	}
	if r.PollInterval <= 0 {
		r.PollInterval = DefaultPollInterval
	}

	return r
}

func (c EvmChain) WithDefaults() EvmChain {
	if c.Target <= 0 {
		c.Target = DefaultTarget
	}
	if c.BlockTime <= 0 {
		c.BlockTime = DefaultBlockTime
	}

	return c
}
