// Package config loads fgoctl and burn cascade configuration.
package config

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"

	"github.com/jacentio/fgo/internal/tracing"
	"github.com/jacentio/fgo/ledger"
	"github.com/jacentio/fgo/store"
)

var (
	// ErrUnknownNetwork is returned when the selected network is not configured.
	ErrUnknownNetwork = errors.New("config: unknown network")

	// ErrNoSigners is returned when no private keys are available.
	ErrNoSigners = errors.New("config: no private keys configured")

	// ErrInvalidKey is returned for a malformed private key.
	ErrInvalidKey = errors.New("config: invalid private key")
)

// DevKeys are the first two well-known local development accounts. They
// sign for the localhost network when PRIVATE_KEYS is unset.
var DevKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
}

// Network is one deployment target.
type Network struct {
	// Region is the AWS region of the tables.
	Region string `mapstructure:"region"`

	// Endpoint overrides the DynamoDB endpoint, e.g. DynamoDB Local.
	Endpoint string `mapstructure:"endpoint"`

	// Profile is the shared AWS config profile.
	Profile string `mapstructure:"profile"`

	// TablePrefix is prepended to every table name.
	TablePrefix string `mapstructure:"table_prefix"`
}

// Tables names the store tables.
type Tables struct {
	Registry      string        `mapstructure:"registry"`
	Child         string        `mapstructure:"child"`
	Parent        string        `mapstructure:"parent"`
	Relationship  string        `mapstructure:"relationship"`
	NumShards     int           `mapstructure:"num_shards"`
	BurnRetention time.Duration `mapstructure:"burn_retention"`
}

// Config is the fgoctl configuration.
type Config struct {
	Network  string             `mapstructure:"network"`
	Networks map[string]Network `mapstructure:"networks"`
	Tables   Tables             `mapstructure:"tables"`
	Tracing  tracing.Config     `mapstructure:"tracing"`

	// PrivateKeys come from the PRIVATE_KEYS environment variable.
	PrivateKeys []string `mapstructure:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	sc := store.DefaultConfig()
	return Config{
		Network: "localhost",
		Networks: map[string]Network{
			"localhost": {Region: "us-east-1", Endpoint: "http://127.0.0.1:8000"},
			"mumbai":    {Region: "us-east-1", Profile: "fgo-mumbai", TablePrefix: "mumbai-"},
			"polygon":   {Region: "us-east-1", Profile: "fgo-polygon", TablePrefix: "polygon-"},
		},
		Tables: Tables{
			Registry:      sc.RegistryTable,
			Child:         sc.ChildTable,
			Parent:        sc.ParentTable,
			Relationship:  sc.RelationshipTable,
			NumShards:     sc.NumShards,
			BurnRetention: sc.BurnRetention,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("network", d.Network)
	for name, n := range d.Networks {
		v.SetDefault("networks."+name+".region", n.Region)
		v.SetDefault("networks."+name+".endpoint", n.Endpoint)
		v.SetDefault("networks."+name+".profile", n.Profile)
		v.SetDefault("networks."+name+".table_prefix", n.TablePrefix)
	}
	v.SetDefault("tables.registry", d.Tables.Registry)
	v.SetDefault("tables.child", d.Tables.Child)
	v.SetDefault("tables.parent", d.Tables.Parent)
	v.SetDefault("tables.relationship", d.Tables.Relationship)
	v.SetDefault("tables.num_shards", d.Tables.NumShards)
	v.SetDefault("tables.burn_retention", d.Tables.BurnRetention)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Load reads configuration into v. An explicit path must exist; otherwise
// fgo.yaml is looked up in the working directory and ~/.config/fgo, and
// defaults apply when neither exists. FGO_* environment variables override
// file values.
func Load(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fgo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "fgo"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("fgo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("private_keys", "PRIVATE_KEYS"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.PrivateKeys = splitKeys(v.GetString("private_keys"))
	return cfg, nil
}

// splitKeys splits a comma separated key list, dropping blanks.
func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// ActiveNetwork returns the selected network.
func (c Config) ActiveNetwork() (Network, error) {
	n, ok := c.Networks[strings.ToLower(c.Network)]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, c.Network)
	}
	return n, nil
}

// StoreConfig returns the store configuration for the active network.
func (c Config) StoreConfig() (store.Config, error) {
	n, err := c.ActiveNetwork()
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		RegistryTable:     n.TablePrefix + c.Tables.Registry,
		ChildTable:        n.TablePrefix + c.Tables.Child,
		ParentTable:       n.TablePrefix + c.Tables.Parent,
		RelationshipTable: n.TablePrefix + c.Tables.Relationship,
		NumShards:         c.Tables.NumShards,
		BurnRetention:     c.Tables.BurnRetention,
	}, nil
}

// Signers returns the accounts of the configured private keys. The
// localhost network falls back to DevKeys.
func (c Config) Signers() ([]Signer, error) {
	keys := c.PrivateKeys
	if len(keys) == 0 && strings.EqualFold(c.Network, "localhost") {
		keys = DevKeys
	}
	if len(keys) == 0 {
		return nil, ErrNoSigners
	}
	return Signers(keys)
}

// Signer is an account derived from a private key.
type Signer struct {
	Address ledger.Address
	Key     *ecdsa.PrivateKey
}

// Signers derives accounts from hex private keys, with or without a 0x prefix.
func Signers(keys []string) ([]Signer, error) {
	signers := make([]Signer, 0, len(keys))
	for i, k := range keys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(k), "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: key %d: %v", ErrInvalidKey, i, err)
		}
		signers = append(signers, Signer{
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Key:     key,
		})
	}
	return signers, nil
}

// AWSConfig loads the AWS configuration for n.
func (n Network) AWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if n.Region != "" {
		opts = append(opts, awsconfig.WithRegion(n.Region))
	}
	if n.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(n.Profile))
	}
	if n.Endpoint != "" {
		// DynamoDB Local accepts any credentials
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: "local", SecretAccessKey: "local", Source: "fgo"}, nil
			})))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// DynamoDB returns a DynamoDB client for n.
func (n Network) DynamoDB(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := n.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewDynamoDB(cfg, n.Endpoint), nil
}

// NewDynamoDB creates a DynamoDB client, optionally against a custom endpoint.
func NewDynamoDB(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
