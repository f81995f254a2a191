package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server    string `env:"COURIER_SERVER,default=messenger.hotmail.com:1863"`
	LoginName string `env:"COURIER_LOGIN_NAME"`
	Password  string `env:"COURIER_PASSWORD"`
	DebugHTTP bool   `env:"COURIER_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
