package core

import (
	"math/rand"
	"strings"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/config"
)

type imageService struct {
	catalog *config.Catalog
	pick    func(n int) int
}

// NewImageService serves random image URLs from the catalog.
func NewImageService(catalog *config.Catalog) ImageService {
	return &imageService{catalog: catalog, pick: rand.Intn}
}

func (s *imageService) Categories() []string {
	return s.catalog.Categories()
}

func (s *imageService) HasCategory(category string) bool {
	return len(s.catalog.Images[strings.ToLower(category)]) > 0
}

// Random picks one URL of the category uniformly at random.
func (s *imageService) Random(category string) (string, error) {
	urls, ok := s.catalog.Images[strings.ToLower(category)]
	if !ok || len(urls) == 0 {
		return "", ErrCategoryNotFound
	}
	return urls[s.pick(len(urls))], nil
}
