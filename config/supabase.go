package config

import (
	"fmt"
	"log"
	"os"

	supa "github.com/supabase-community/supabase-go"
)

var SupabaseClient *supa.Client

// InitSupabase initializes the Supabase client using environment variables.
func InitSupabase() error {
	supabaseURL := os.Getenv("SUPABASE_URL")
	if supabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL must be set")
	}

	supabaseKey := os.Getenv("SUPABASE_SERVICE_KEY")
	if supabaseKey == "" {
		supabaseKey = os.Getenv("SUPABASE_ANON_KEY")
		log.Println("Warning: Using anonymous key for Supabase. Set SUPABASE_SERVICE_KEY for full access.")
	}
	if supabaseKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY or SUPABASE_ANON_KEY must be set")
	}

	client, err := supa.NewClient(supabaseURL, supabaseKey, nil)
	if err != nil {
		return fmt.Errorf("error initializing Supabase client: %w", err)
	}

	SupabaseClient = client
	log.Println("Supabase client initialized successfully.")
	return nil
}

// GetGoogleAPIKey returns the key used for Google Sheets API requests.
func GetGoogleAPIKey() string {
	return os.Getenv("GOOGLE_API_KEY")
}
