package ahci

import "fmt"
import "strings"

import "github.com/spf13/viper"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/util"

/// Config_t holds the driver's tunables. Spin limits count register polls;
/// zero means unbounded.
type Config_t struct {
	Max_sectors   int  `mapstructure:"max_sectors"`   /// per-command sector cap
	Chunk_size    int  `mapstructure:"chunk_size"`    /// bytes per DMA buffer
	Nprd          int  `mapstructure:"nprd"`          /// PRD entries per command table
	Atapi_chunk   int  `mapstructure:"atapi_chunk"`   /// shared ATAPI transfer buffer
	Spin_start    int  `mapstructure:"spin_start"`    /// waiting for CR to clear before start
	Spin_stop     int  `mapstructure:"spin_stop"`     /// waiting for FR and CR to clear
	Spin_busy     int  `mapstructure:"spin_busy"`     /// waiting for BSY and DRQ before issue
	Spin_identify int  `mapstructure:"spin_identify"` /// waiting for IDENTIFY to complete
	Spin_complete int  `mapstructure:"spin_complete"` /// waiting for a data command
	Spin_handoff  int  `mapstructure:"spin_handoff"`  /// waiting for the BIOS to release the HBA
	Write_cache   bool `mapstructure:"write_cache"`
	Read_ahead    bool `mapstructure:"read_ahead"`
}

/// Default_config returns the tunables the driver was tuned with.
func Default_config() Config_t {
	return Config_t{
		Max_sectors:   128,
		Chunk_size:    8 << 10,
		Nprd:          8,
		Atapi_chunk:   256 * hba.SECTSZ,
		Spin_start:    1000000,
		Spin_stop:     1000000,
		Spin_busy:     1000000,
		Spin_identify: 1000000,
		Spin_complete: 0,
		Spin_handoff:  1000000,
		Write_cache:   true,
		Read_ahead:    true,
	}
}

// most PRD entries a command of max sectors needs. Commands start at
// multiples of max sectors into a request; unless that is a multiple of the
// chunk size a command may begin inside a chunk.
func (c *Config_t) prds(max int) int {
	b := max * hba.SECTSZ
	n := util.Ceildiv(b, c.Chunk_size)
	if b%c.Chunk_size != 0 {
		n++
	}
	return n
}

/// Validate checks that a command of Max_sectors sectors fits its table and
/// consists of whole DMA buffers, and that the shorter commands used for
/// 28-bit devices fit as well.
func (c *Config_t) Validate() error {
	if c.Max_sectors < 1 || c.Max_sectors > 65536 {
		return fmt.Errorf("ahci: max_sectors %v not in [1, 65536]", c.Max_sectors)
	}
	if c.Chunk_size <= 0 || c.Chunk_size%hba.SECTSZ != 0 || c.Chunk_size > hba.MAX_PRD_SIZE {
		return fmt.Errorf("ahci: chunk_size %v must be a multiple of %v up to %v",
			c.Chunk_size, hba.SECTSZ, hba.MAX_PRD_SIZE)
	}
	if c.Nprd < 1 || hba.Cmdtbl_len(c.Nprd) > mem.PGSIZE {
		return fmt.Errorf("ahci: nprd %v out of range", c.Nprd)
	}
	cmdbytes := c.Max_sectors * hba.SECTSZ
	if cmdbytes%c.Chunk_size != 0 {
		return fmt.Errorf("ahci: max_sectors %v is not a whole number of %v byte chunks",
			c.Max_sectors, c.Chunk_size)
	}
	if cmdbytes > c.Nprd*c.Chunk_size {
		return fmt.Errorf("ahci: %v sector commands need more than %v PRD entries",
			c.Max_sectors, c.Nprd)
	}
	if lba28 := util.Min(c.Max_sectors, LBA28_CAP); c.prds(lba28) > c.Nprd {
		return fmt.Errorf("ahci: %v sector lba28 commands need %v PRD entries, have %v",
			lba28, c.prds(lba28), c.Nprd)
	}
	if c.Atapi_chunk <= 0 || c.Atapi_chunk%2048 != 0 || c.Atapi_chunk > hba.MAX_PRD_SIZE {
		return fmt.Errorf("ahci: atapi_chunk %v must be a multiple of 2048 up to %v",
			c.Atapi_chunk, hba.MAX_PRD_SIZE)
	}
	for _, s := range []int{c.Spin_start, c.Spin_stop, c.Spin_busy,
		c.Spin_identify, c.Spin_complete, c.Spin_handoff} {
		if s < 0 {
			return fmt.Errorf("ahci: negative spin limit %v", s)
		}
	}
	return nil
}

/// Set_defaults registers the driver defaults under the "ahci" key.
func Set_defaults(v *viper.Viper) {
	d := Default_config()
	v.SetDefault("ahci.max_sectors", d.Max_sectors)
	v.SetDefault("ahci.chunk_size", d.Chunk_size)
	v.SetDefault("ahci.nprd", d.Nprd)
	v.SetDefault("ahci.atapi_chunk", d.Atapi_chunk)
	v.SetDefault("ahci.spin_start", d.Spin_start)
	v.SetDefault("ahci.spin_stop", d.Spin_stop)
	v.SetDefault("ahci.spin_busy", d.Spin_busy)
	v.SetDefault("ahci.spin_identify", d.Spin_identify)
	v.SetDefault("ahci.spin_complete", d.Spin_complete)
	v.SetDefault("ahci.spin_handoff", d.Spin_handoff)
	v.SetDefault("ahci.write_cache", d.Write_cache)
	v.SetDefault("ahci.read_ahead", d.Read_ahead)
}

/// Mkviper returns a viper instance with the driver defaults in which
/// environment variables such as AHCI_MAX_SECTORS override any file.
func Mkviper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	Set_defaults(v)
	return v
}

/// Load_config reads the optional YAML file at path over the defaults and
/// environment and returns the validated driver configuration.
func Load_config(path string) (Config_t, error) {
	v := Mkviper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config_t{}, fmt.Errorf("ahci: reading %s: %w", path, err)
		}
	}
	return Config_from(v)
}

/// Config_from decodes the "ahci" section of v.
func Config_from(v *viper.Viper) (Config_t, error) {
	var f struct {
		Ahci Config_t `mapstructure:"ahci"`
	}
	if err := v.Unmarshal(&f); err != nil {
		return Config_t{}, fmt.Errorf("ahci: decoding config: %w", err)
	}
	if err := f.Ahci.Validate(); err != nil {
		return Config_t{}, err
	}
	return f.Ahci, nil
}
