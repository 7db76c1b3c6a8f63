package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

type MQ struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type HTTP struct {
	Port int `yaml:"port"`
}

// Stripe keys come from the environment, never from the YAML file.
type Stripe struct {
	APIKey        string
	WebhookSecret string
}

type App struct {
	Database DB     `yaml:"database"`
	Rabbit   MQ     `yaml:"rabbitmq"`
	HTTP     HTTP   `yaml:"http"`
	Stripe   Stripe `yaml:"-"`
}

func Load(path string) (App, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, fmt.Errorf("read config: %w", err)
	}

	a := App{
		Database: DB{Port: 5432, SSLMode: "disable", MaxConns: 10},
		Rabbit:   MQ{Port: 5672, VHost: "/"},
		HTTP:     HTTP{Port: 3000},
	}
	if err := yaml.Unmarshal(b, &a); err != nil {
		return App{}, fmt.Errorf("parse config: %w", err)
	}

	a.Stripe.APIKey = os.Getenv("STRIPE_API_KEY")
	a.Stripe.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	if a.Database.Host == "" || a.Database.User == "" || a.Database.Database == "" {
		return App{}, errors.New("invalid config: database section incomplete")
	}
	if a.Rabbit.Host == "" || a.Rabbit.User == "" {
		return App{}, errors.New("invalid config: rabbitmq section incomplete")
	}
	return a, nil
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
