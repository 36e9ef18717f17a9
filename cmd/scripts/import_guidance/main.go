package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/models"
	"gopkg.in/yaml.v3"
	gormlogger "gorm.io/gorm/logger"
)

type guidanceFile struct {
	Documents []struct {
		Title    string   `yaml:"title"`
		Body     string   `yaml:"body"`
		Keywords []string `yaml:"keywords"`
		Source   string   `yaml:"source"`
		Inactive bool     `yaml:"inactive"`
	} `yaml:"documents"`
}

// import_guidance loads guidance documents from a YAML file into the database
// named by CONFIG_PATH (or DB_DRIVER/DB_DSN).
func main() {
	file := flag.String("file", "guidance.yaml", "YAML file with a documents list")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *file, err)
	}
	var in guidanceFile
	if err := yaml.Unmarshal(raw, &in); err != nil {
		log.Fatalf("Failed to parse %s: %v", *file, err)
	}

	docs := make([]models.GuidanceDocument, 0, len(in.Documents))
	for i, d := range in.Documents {
		if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Body) == "" {
			log.Fatalf("Document %d needs a title and a body", i+1)
		}
		docs = append(docs, models.GuidanceDocument{
			Title:    strings.TrimSpace(d.Title),
			Body:     strings.TrimSpace(d.Body),
			Keywords: strings.ToLower(strings.Join(d.Keywords, ",")),
			Source:   d.Source,
			IsActive: !d.Inactive,
		})
	}

	db, err := models.Open(&cfg.Database, gormlogger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	fmt.Printf("Connected to %s database\n\n", cfg.Database.Driver)

	created, updated, err := models.UpsertGuidance(db, docs)
	if err != nil {
		log.Fatalf("Failed to import guidance: %v", err)
	}

	fmt.Printf("%-40s %-30s %-8s\n", "Title", "Source", "Active")
	fmt.Println(strings.Repeat("-", 80))
	for _, d := range docs {
		fmt.Printf("%-40s %-30s %-8v\n", truncate(d.Title, 40), truncate(d.Source, 30), d.IsActive)
	}
	fmt.Printf("\nCreated %d, updated %d guidance documents.\n", created, updated)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
