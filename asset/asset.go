// Package asset embeds the upload page and text resources.
package asset

import (
	"embed"
	"fmt"

	"github.com/dixieflatline76/facecrop/util/log"
)

//go:embed web/* text/*
var assets embed.FS

// Manager manages the loading of embedded assets.
type Manager struct{}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{}
}

// GetPage loads and returns an embedded web page by name.
func (am *Manager) GetPage(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("page name is empty")
	}
	page, err := assets.ReadFile("web/" + name)
	if err != nil {
		log.Println("Error loading page:", err)
		return nil, err
	}
	return page, nil
}

// GetText loads and returns embedded text asset by name.
func (am *Manager) GetText(name string) (string, error) {
	textBytes, err := assets.ReadFile("text/" + name)
	if err != nil {
		log.Println("Error loading text:", err)
		return "", err
	}
	return string(textBytes), nil
}
