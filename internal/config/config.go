package config

import "time"

type ServerModeType string

const (
	ServerModeDev  ServerModeType = "dev"
	ServerModeProd ServerModeType = "prod"
)

//go:generate go run github.com/ecordell/optgen -output zz_generated.configuration.go . Configuration Server Collection Storage
type Configuration struct {
	Server     Server     `debugmap:"visible" toml:"server"`
	Collection Collection `debugmap:"visible" toml:"collection"`
	Storage    Storage    `debugmap:"visible" toml:"storage"`

	// Log
	LogFormat string `debugmap:"visible" default:"console" toml:"log_format"`
	LogLevel  string `debugmap:"visible" default:"info" toml:"log_level"`

	ConfigFile string `debugmap:"visible" toml:"-"`
}

type Server struct {
	ServerMode string `debugmap:"visible" default:"dev" toml:"mode"`
	HTTPPort   int    `debugmap:"visible" default:"8080" toml:"http_port"`
}

type Collection struct {
	NumWorkers      int           `debugmap:"visible" default:"2" toml:"num_workers"`
	DefaultLimit    int           `debugmap:"visible" default:"5" toml:"default_limit"`
	UnitTimeout     time.Duration `debugmap:"visible" default:"5m" toml:"unit_timeout"`
	SyncSoftTimeout time.Duration `debugmap:"visible" default:"30m" toml:"sync_soft_timeout"`
	SyncHardTimeout time.Duration `debugmap:"visible" default:"35m" toml:"sync_hard_timeout"`
	AnsibleBinary   string        `debugmap:"visible" default:"ansible" toml:"ansible_binary"`
	AnsibleTimeout  time.Duration `debugmap:"visible" default:"10m" toml:"ansible_timeout"`
	SSHPrecheck     bool          `debugmap:"visible" default:"true" toml:"ssh_precheck"`
	PrecheckTimeout time.Duration `debugmap:"visible" default:"10s" toml:"precheck_timeout"`
	VSphereTimeout  time.Duration `debugmap:"visible" default:"1m" toml:"vsphere_timeout"`
	WorkDir         string        `debugmap:"visible" toml:"work_dir"`
}

type Storage struct {
	DataFolder string `debugmap:"visible" toml:"data_folder"`
	// KeyFile holds the age identity used to seal passwords.
	KeyFile string `debugmap:"visible" toml:"key_file"`
}
