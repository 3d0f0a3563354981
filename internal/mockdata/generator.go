package mockdata

import (
	"fmt"
	"math"
	"time"

	"dealscope/internal/models"
	"dealscope/internal/platform"
)

// Dataset is the synthetic universe the mock provider serves. Generated
// once per process from a fixed seed; shaped exactly like real API
// output, so UI code never special-cases mock mode.
type Dataset struct {
	Models []models.Model
	Ads    []models.Ad
	Users  []models.AdminUser
}

var gpuNames = []string{"RTX 3060", "RTX 3070", "RTX 3080", "RTX 4070", "RX 6700 XT", "RX 6800", "GTX 1660 Super", "RTX 4060 Ti"}
var cpuNames = []string{"Ryzen 5 5600X", "Ryzen 7 5800X", "Ryzen 7 7800X3D", "Core i5-12400F", "Core i7-12700K", "Core i5-13600K"}
var ramNames = []string{"Vengeance 16GB DDR4 3200", "Trident Z 32GB DDR4 3600", "Fury Beast 16GB DDR5 5200"}
var ssdNames = []string{"970 EVO Plus 1TB", "980 Pro 2TB", "SN850X 1TB", "P5 Plus 1TB"}

var brandByCategory = map[models.Category][]string{
	models.CategoryGPU: {"NVIDIA", "AMD"},
	models.CategoryCPU: {"AMD", "Intel"},
	models.CategoryRAM: {"Corsair", "G.Skill", "Kingston"},
	models.CategorySSD: {"Samsung", "WD", "Crucial"},
}

var priceRange = map[models.Category][2]float64{
	models.CategoryGPU: {150, 900},
	models.CategoryCPU: {90, 450},
	models.CategoryRAM: {35, 140},
	models.CategorySSD: {50, 220},
}

var regions = []string{"Île-de-France", "Auvergne-Rhône-Alpes", "Occitanie", "Bretagne", "Hauts-de-France", "PACA"}

var conditions = []string{
	string(models.ConditionNew),
	string(models.ConditionExcellent),
	string(models.ConditionGood),
	string(models.ConditionWorn),
}

// adCondFactor shifts a listing's fair value by claimed condition.
var adCondFactor = map[models.Condition]float64{
	models.ConditionNew:       1.10,
	models.ConditionExcellent: 1.00,
	models.ConditionGood:      0.92,
	models.ConditionWorn:      0.80,
}

// Generate builds the full dataset from one seeded stream. Every derived
// value honors the data-model invariants: liquidity in [0,1], volume >= 0,
// signed variation percentages.
func Generate(seed int64) *Dataset {
	r := NewRand(seed)
	ds := &Dataset{}

	names := map[models.Category][]string{
		models.CategoryGPU: gpuNames,
		models.CategoryCPU: cpuNames,
		models.CategoryRAM: ramNames,
		models.CategorySSD: ssdNames,
	}

	id := 0
	for _, cat := range []models.Category{models.CategoryGPU, models.CategoryCPU, models.CategoryRAM, models.CategorySSD} {
		for _, name := range names[cat] {
			id++
			ds.Models = append(ds.Models, generateModel(r, id, cat, name))
		}
	}

	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		ds.Ads = append(ds.Ads, generateAd(r, i+1, ds.Models, base))
	}

	for i := 0; i < 25; i++ {
		ds.Users = append(ds.Users, generateUser(r, uint(i+1), base))
	}
	return ds
}

func generateModel(r *Rand, id int, cat models.Category, name string) models.Model {
	pr := priceRange[cat]
	median := r.Float(pr[0], pr[1])

	trend := models.TrendStable
	drift30 := r.Float(-8, 8)
	switch {
	case drift30 > 2.5:
		trend = models.TrendUp
	case drift30 < -2.5:
		trend = models.TrendDown
	}

	brand := r.Pick(brandByCategory[cat])
	return models.Model{
		ID:       id,
		Name:     name,
		Brand:    brand,
		Family:   fmt.Sprintf("%s %s", brand, cat),
		Category: cat,
		Aliases:  []string{name, fmt.Sprintf("%s %s", brand, name)},
		Market: models.MarketSnapshot{
			MedianPrice:      round2(median),
			Var7dPct:         round2(drift30 / 4),
			Var30dPct:        round2(drift30),
			Var90dPct:        round2(drift30 * r.Float(1.2, 2.2)),
			ActiveVolume:     r.Int(5, 250),
			LiquidityIndex:   round2(r.Float(0.05, 0.95)),
			Trend:            trend,
			MedianDaysToSell: r.Int(2, 30),
		},
	}
}

func generateAd(r *Rand, id int, catalog []models.Model, base time.Time) models.Ad {
	model := catalog[r.Int(0, len(catalog)-1)]
	cond := models.Condition(r.Pick(conditions))

	fair := model.Market.MedianPrice * adCondFactor[cond]
	// Listing prices scatter around fair value, skewed toward discounts
	// so the deal feed has something to surface.
	price := fair * (1 + r.Float(-0.35, 0.25))

	itemType := models.ItemComponent
	if r.Bool(0.12) {
		itemType = models.ItemPC
	} else if r.Bool(0.06) {
		itemType = models.ItemLot
	}

	plats := platform.All()
	plat := plats[r.Int(0, len(plats)-1)]

	return models.Ad{
		ID:          id,
		ModelID:     model.ID,
		Title:       fmt.Sprintf("%s %s - %s", model.Brand, model.Name, cond),
		Price:       round2(price),
		FairValue:   round2(fair),
		Platform:    plat,
		Condition:   cond,
		ItemType:    itemType,
		Region:      r.Pick(regions),
		PublishedAt: base.Add(-time.Duration(r.Int(0, 72)) * time.Hour),
	}
}

func generateUser(r *Rand, id uint, base time.Time) models.AdminUser {
	plans := []string{string(models.PlanFree), string(models.PlanFree), string(models.PlanPro), string(models.PlanExpert)}
	username := fmt.Sprintf("user%02d", id)
	return models.AdminUser{
		ID:               id,
		Email:            username + "@example.com",
		Username:         username,
		Plan:             models.Plan(r.Pick(plans)),
		CreditsRemaining: r.Int(0, 100),
		IsActive:         r.Bool(0.9),
		LastLoginAt:      base.Add(-time.Duration(r.Int(0, 40*24)) * time.Hour),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
