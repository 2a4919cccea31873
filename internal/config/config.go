package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Game     GameConfig     `mapstructure:"game"`
	Bot      BotConfig      `mapstructure:"bot"`
	Replica  ReplicaConfig  `mapstructure:"replica"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

// GameConfig holds the default duel rules; tables may override them.
type GameConfig struct {
	StartHP      int     `mapstructure:"startHp"`
	MaxHP        int     `mapstructure:"maxHp"`
	LiveCount    int     `mapstructure:"liveCount"`
	BlankCount   int     `mapstructure:"blankCount"`
	MinActors    int     `mapstructure:"minActors"`
	MaxSeats     int     `mapstructure:"maxSeats"`
	AutoStart    bool    `mapstructure:"autoStart"`
	RevealShells bool    `mapstructure:"revealShells"`
	SeatRadius   float64 `mapstructure:"seatRadius"`
}

type BotConfig struct {
	Mode             string        `mapstructure:"mode"` // alternate/self/opponent/random
	ShotDelay        time.Duration `mapstructure:"shotDelay"`
	MaxShotsPerRound int           `mapstructure:"maxShotsPerRound"`
}

type ReplicaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	LeaseTTL      time.Duration `mapstructure:"leaseTtl"`
	PublishBuffer int           `mapstructure:"publishBuffer"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("jwt.expire", 72)

	v.SetDefault("game.startHp", 3)
	v.SetDefault("game.maxHp", 6)
	v.SetDefault("game.liveCount", 2)
	v.SetDefault("game.blankCount", 4)
	v.SetDefault("game.minActors", 2)
	v.SetDefault("game.maxSeats", 6)
	v.SetDefault("game.autoStart", true)
	v.SetDefault("game.revealShells", false)
	v.SetDefault("game.seatRadius", 1.5)

	v.SetDefault("bot.mode", "alternate")
	v.SetDefault("bot.shotDelay", 800*time.Millisecond)
	v.SetDefault("bot.maxShotsPerRound", 20)

	v.SetDefault("replica.enabled", true)
	v.SetDefault("replica.leaseTtl", 10*time.Second)
	v.SetDefault("replica.publishBuffer", 256)
}

// Read decodes the YAML file at path, applying defaults and ROULETTE_* env overrides.
func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("roulette")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadConfig(path string) {
	cfg, err := Read(path)
	if err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}
	GlobalConfig = cfg
}
