package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	LogMode     string // "production" or "development"

	SAMAPIKey string

	JWTSecret     string
	AdminEmail    string
	AdminPassword string

	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphSender       string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	samKey := os.Getenv("SAM_API_KEY")
	if samKey == "" {
		fmt.Println("Warning: SAM_API_KEY not set, live SAM.gov fetches will not work")
	}

	graphTenant := os.Getenv("GRAPH_TENANT_ID")
	graphClient := os.Getenv("GRAPH_CLIENT_ID")
	graphSecret := os.Getenv("GRAPH_CLIENT_SECRET")
	if graphTenant == "" || graphClient == "" || graphSecret == "" {
		fmt.Println("Warning: GRAPH_TENANT_ID, GRAPH_CLIENT_ID or GRAPH_CLIENT_SECRET not set, email notifications will not work")
	}

	return &Config{
		DatabaseURL:       dbURL,
		Port:              port,
		LogMode:           os.Getenv("LOG_MODE"),
		SAMAPIKey:         samKey,
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		GraphTenantID:     graphTenant,
		GraphClientID:     graphClient,
		GraphClientSecret: graphSecret,
		GraphSender:       os.Getenv("GRAPH_SENDER"),
	}, nil
}
