package catalog

import "github.com/syedhariswaseem/lazr/internal/domain"

const seedImage = "https://images.unsplash.com/photo-1581091226825-a6a2a5aee158?w=500&h=300&fit=crop"

var seedProducts = []domain.Product{
	{
		Name:        "Lazr Cutter Pro 5000",
		Description: "High-power CO2 laser cutting system with 5000W output for industrial applications",
		Price:       12500000,
		Category:    "Industrial",
		ImageURL:    seedImage,
		Rating:      4.8,
		StockCount:  5,
		InStock:     true,
	},
	{
		Name:        "Fiber Laser Cutter Elite 3000",
		Description: "Advanced fiber laser technology for precise metal cutting and engraving",
		Price:       8900000,
		Category:    "Metal Cutting",
		ImageURL:    seedImage,
		Rating:      4.9,
		StockCount:  3,
		InStock:     true,
	},
	{
		Name:        "Compact Laser Cutter Mini 1000",
		Description: "Compact and portable laser cutting solution for small workshops",
		Price:       4500000,
		Category:    "Compact",
		ImageURL:    seedImage,
		Rating:      4.6,
		StockCount:  8,
		InStock:     true,
	},
	{
		Name:        "Automated Laser System Max 8000",
		Description: "Fully automated laser cutting system with robotic material handling",
		Price:       25000000,
		Category:    "Automated",
		ImageURL:    seedImage,
		Rating:      4.9,
		StockCount:  0,
		InStock:     false,
	},
	{
		Name:        "3D Laser Cutter Advanced",
		Description: "3D laser cutting and engraving system for complex geometries",
		Price:       18000000,
		Category:    "3D Cutting",
		ImageURL:    seedImage,
		Rating:      4.7,
		StockCount:  2,
		InStock:     true,
	},
	{
		Name:        "Water Jet Laser Hybrid",
		Description: "Hybrid laser and water jet cutting system for versatile material processing",
		Price:       32000000,
		Category:    "Hybrid",
		ImageURL:    seedImage,
		Rating:      4.8,
		StockCount:  1,
		InStock:     true,
	},
	{
		Name:        "Ultra-Lazr Cutter 2000",
		Description: "Ultra-precision laser cutting system for micro-manufacturing applications",
		Price:       15000000,
		Category:    "Precision",
		ImageURL:    seedImage,
		Rating:      4.9,
		StockCount:  1,
		InStock:     true,
	},
}
