package hdfsftpd

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Privilege bits, mirroring the READFILE/WRITEFILE/DELETEFILE/LIST/
// CREATEDIR/DELETEDIR bitmask named in spec §3.
const (
	PrivilegeReadFile uint8 = 1 << iota
	PrivilegeWriteFile
	PrivilegeDeleteFile
	PrivilegeList
	PrivilegeCreateDir
	PrivilegeDeleteDir

	PrivilegeAll = PrivilegeReadFile | PrivilegeWriteFile | PrivilegeDeleteFile |
		PrivilegeList | PrivilegeCreateDir | PrivilegeDeleteDir
)

// UserConfig is one entry of the Config.Users table (spec §3's CUserEntry,
// minus the runtime fields which live on User).
type UserConfig struct {
	Login           string `mapstructure:"login" validate:"required,max=16"`
	Password        string `mapstructure:"password" validate:"required,max=16"`
	StartDirectory  string `mapstructure:"start_directory" validate:"required"`
	Privileges      uint8  `mapstructure:"privileges" validate:"max=63"`
	MaxClients      uint32 `mapstructure:"max_clients" validate:"min=1"`
	Enabled         bool   `mapstructure:"enabled"`
}

// DataPortRange bounds the PASV port-scan window (spec §4.1).
type DataPortRange struct {
	Start int `mapstructure:"start" validate:"min=1,max=65535"`
	Len   int `mapstructure:"len" validate:"min=1"`
}

// HDFSConfig carries the namenode binding handed to the RemoteFS
// implementation (spec §1's "abstract RemoteFS capability").
type HDFSConfig struct {
	NameNodeHost string `mapstructure:"namenode_host" validate:"required"`
	NameNodePort int    `mapstructure:"namenode_port" validate:"min=1,max=65535"`
	BufferSize   int    `mapstructure:"buffer_size" validate:"min=0"`
	Replication  int16  `mapstructure:"replication" validate:"min=0"`
	BlockSize    int64  `mapstructure:"block_size" validate:"min=0"`
}

// Config is the full set of tunables a Server is constructed with (spec §6).
// It is loaded by the embedding process (typically via spf13/viper, see
// cmd/hdfsftpd) and handed to NewServer already populated.
type Config struct {
	ListeningIP   string        `mapstructure:"listening_ip" validate:"required,ip"`
	ListeningPort int           `mapstructure:"listening_port" validate:"min=1,max=65535"`
	DataPortRange DataPortRange `mapstructure:"data_port_range" validate:"required"`

	MaxPasswordTries int           `mapstructure:"max_password_tries" validate:"min=1"`
	CheckPassDelay   time.Duration `mapstructure:"check_pass_delay"`
	NoLoginTimeout   time.Duration `mapstructure:"no_login_timeout" validate:"required"`
	NoTransferTimeout time.Duration `mapstructure:"no_transfer_timeout" validate:"required"`

	TransferBufferSize       int  `mapstructure:"transfer_buffer_size" validate:"min=1"`
	TransferSocketBufferSize int  `mapstructure:"transfer_socket_buffer_size" validate:"min=1"`
	EnableFXP                bool `mapstructure:"enable_fxp"`
	EnableZlib               bool `mapstructure:"enable_zlib"`

	HDFS HDFSConfig `mapstructure:"hdfs"`

	Users []UserConfig `mapstructure:"users" validate:"dive"`

	LogDirectory         string `mapstructure:"log_directory"`
	EnableUserLogging     bool   `mapstructure:"enable_user_logging"`
	EnableClientLogging   bool   `mapstructure:"enable_client_logging"`
	EnableServerLogging   bool   `mapstructure:"enable_server_logging"`
}

// DefaultConfig returns this package's baseline: listening on 0.0.0.0:2121,
// a 60s login grace period, a 300s idle-transfer timeout, a 5-try lockout
// with no PASS delay, PASV ports 50000-50099, 64 KiB transfer and socket
// buffers, FXP off and MODE Z on. These are not the original engine's
// defaults.
func DefaultConfig() Config {
	return Config{
		ListeningIP:   "0.0.0.0",
		ListeningPort: 2121,
		DataPortRange: DataPortRange{Start: 50000, Len: 100},

		MaxPasswordTries: 5,
		CheckPassDelay:   0,
		NoLoginTimeout:   60 * time.Second,
		NoTransferTimeout: 300 * time.Second,

		TransferBufferSize:       64 * 1024,
		TransferSocketBufferSize: 64 * 1024,
		EnableFXP:                false,
		EnableZlib:               true,
	}
}

// Validate runs struct-tag validation plus the cross-field invariants the
// tags can't express (privilege bitmask range, canonical start directories).
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return newConfigError("invalid configuration", err)
	}

	for i := range c.Users {
		u := &c.Users[i]
		if u.Privileges > PrivilegeAll {
			return newConfigError(fmt.Sprintf("user %q: privilege bitmask out of range", u.Login), nil)
		}

		if u.StartDirectory == "" || u.StartDirectory[0] != '/' {
			return newConfigError(fmt.Sprintf("user %q: start_directory must be absolute", u.Login), nil)
		}

		if clean, err := simplifyVirtualPath(u.StartDirectory); err != nil || clean != u.StartDirectory {
			return newConfigError(fmt.Sprintf("user %q: start_directory must be canonical", u.Login), nil)
		}
	}

	return nil
}
