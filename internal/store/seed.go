package store

import "github.com/erazemk/objectory/internal/model"

// SeedItems returns the collection shown before anything has been saved.
func SeedItems() []model.Item {
	return []model.Item{
		{
			ID:          "1",
			Name:        "Vintage Watch",
			Brand:       "Horology Co.",
			Type:        model.ItemTypeWatch,
			Category:    "Watch",
			Color:       "#8B4513",
			Date:        "2024-01-15",
			GLBSrc:      "https://modelviewer.dev/shared-assets/models/Astronaut.glb",
			Description: "A classic timepiece with a rich history and timeless design.",
		},
		{
			ID:          "2",
			Name:        "Materials Shoe",
			Brand:       "Stride",
			Type:        model.ItemTypeSneaker,
			Category:    "Sneaker",
			Color:       "#E5E5E5",
			Date:        "2024-02-01",
			GLBSrc:      "https://raw.githubusercontent.com/KhronosGroup/glTF-Sample-Models/master/2.0/MaterialsVariantsShoe/glTF-Binary/MaterialsVariantsShoe.glb",
			Description: "Lightweight performance sneakers for the modern explorer.",
		},
	}
}
