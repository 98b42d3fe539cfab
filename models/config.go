package models

type Config struct {
	GoogleSecretManager GoogleSecretManagerConfig `yaml:"google_secret_manager" json:"google_secret_manager"`
	HealthCheck         HealthCheckConfig         `yaml:"health_check" json:"health_check"`
	Logger              LoggerConfig              `yaml:"logger" json:"logger"`
	MongoDB             MongoConfig               `yaml:"mongodb" json:"mongo_db"`
	Signer              SignerConfig              `yaml:"signer" json:"signer"`
	Coordinator         CoordinatorConfig         `yaml:"coordinator" json:"coordinator"`
	Bundlr              BundlrConfig              `yaml:"bundlr" json:"bundlr"`
	Chains              []ChainConfig             `yaml:"chains" json:"chains"`
	GrandfatheredFile   string                    `yaml:"grandfathered_file" json:"grandfathered_file"`

	SubmissionSigner   ServiceConfig `yaml:"submission_signer" json:"submission_signer"`
	SubmissionUploader ServiceConfig `yaml:"submission_uploader" json:"submission_uploader"`
	AssetsWorker       ServiceConfig `yaml:"assets_worker" json:"assets_worker"`
	Statistics         ServiceConfig `yaml:"statistics" json:"statistics"`
	BalanceReconciler  BalanceConfig `yaml:"balance_reconciler" json:"balance_reconciler"`
}

type GoogleSecretManagerConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	ProjectId        string `yaml:"project_id" json:"project_id"`
	MongoSecretName  string `yaml:"mongo_secret_name" json:"mongo_secret_name"`
	SignerSecretName string `yaml:"signer_secret_name" json:"signer_secret_name"`
}

type HealthCheckConfig struct {
	IntervalMillis int64  `yaml:"interval_ms" json:"interval_ms"`
	OracleId       string `yaml:"oracle_id" json:"oracle_id"`
	ReadLastHealth bool   `yaml:"read_last_health" json:"read_last_health"`
}

type LoggerConfig struct {
	Level string `yaml:"level" json:"level"`
}

type MongoConfig struct {
	URI           string `yaml:"uri" json:"uri"`
	Database      string `yaml:"database" json:"database"`
	TimeoutMillis int64  `yaml:"timeout_ms" json:"timeout_ms"`
}

// SignerConfig selects exactly one signing backend: a raw hex private key, a
// BIP39 mnemonic, or a GCP KMS key resource name.
type SignerConfig struct {
	PrivateKey    string `yaml:"private_key" json:"private_key"`
	Mnemonic      string `yaml:"mnemonic" json:"mnemonic"`
	GcpKmsKeyName string `yaml:"gcp_kms_key_name" json:"gcp_kms_key_name"`
}

type CoordinatorConfig struct {
	BaseURL       string `yaml:"base_url" json:"base_url"`
	TimeoutMillis int64  `yaml:"timeout_ms" json:"timeout_ms"`
}

type BundlrConfig struct {
	NodeURL       string `yaml:"node_url" json:"node_url"`
	TimeoutMillis int64  `yaml:"timeout_ms" json:"timeout_ms"`
}

const (
	ChainTypeEVM    = "evm"
	ChainTypeSolana = "solana"
)

type ProviderConfig struct {
	RPCURL   string `yaml:"rpc_url" json:"rpc_url"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
}

// ChainConfig has two variants: EVM chains carry providers and block window
// settings, the Solana chain carries its RPC/WS endpoints and stream settings.
type ChainConfig struct {
	ChainId uint64 `yaml:"chain_id" json:"chain_id"`
	Network string `yaml:"network" json:"network"`
	Type    string `yaml:"type" json:"type"`

	IntervalMillis        int64 `yaml:"interval_ms" json:"interval_ms"`
	RPCTimeoutMillis      int64 `yaml:"rpc_timeout_ms" json:"rpc_timeout_ms"`
	MaxValidationAttempts int   `yaml:"max_validation_attempts" json:"max_validation_attempts"`

	// EVM variant
	Providers         []ProviderConfig `yaml:"providers" json:"providers"`
	DebridgeAddress   string           `yaml:"debridge_address" json:"debridge_address"`
	BlockConfirmation int64            `yaml:"block_confirmation" json:"block_confirmation"`
	MaxBlockRange     int64            `yaml:"max_block_range" json:"max_block_range"`
	FirstStartBlock   int64            `yaml:"first_start_block" json:"first_start_block"`

	// Solana variant
	RPCURL                 string `yaml:"rpc_url" json:"rpc_url"`
	WSURL                  string `yaml:"ws_url" json:"ws_url"`
	ProgramAddress         string `yaml:"program_address" json:"program_address"`
	HeartbeatTimeoutMillis int64  `yaml:"heartbeat_timeout_ms" json:"heartbeat_timeout_ms"`
	BackfillPageSize       int    `yaml:"backfill_page_size" json:"backfill_page_size"`
	SyncChunkSize          int    `yaml:"sync_chunk_size" json:"sync_chunk_size"`
}

type ServiceConfig struct {
	Enabled        bool  `yaml:"enabled" json:"enabled"`
	IntervalMillis int64 `yaml:"interval_ms" json:"interval_ms"`
}

type BalanceConfig struct {
	Enabled        bool  `yaml:"enabled" json:"enabled"`
	IntervalMillis int64 `yaml:"interval_ms" json:"interval_ms"`
	PageSize       int64 `yaml:"page_size" json:"page_size"`
}
