package flow

import (
	"math/rand"
	"strings"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// Venue is one entry in the partner directory used by the referral step.
type Venue struct {
	Name   string
	City   string
	Genres []models.Genre
}

// defaultPartnerVenues is the fixed partner directory. Replaceable via
// WithPartnerVenues for other deployments.
var defaultPartnerVenues = []Venue{
	{Name: "Casa do Rock SP", City: "São Paulo", Genres: []models.Genre{models.GenreRock, models.GenrePop}},
	{Name: "Armazém do Samba", City: "São Paulo", Genres: []models.Genre{models.GenreMPB, models.GenreFunk}},
	{Name: "Villa Sertaneja", City: "Campinas", Genres: []models.Genre{models.GenreSertanejo, models.GenreForro}},
	{Name: "Galpão Eletrônico", City: "São Paulo", Genres: []models.Genre{models.GenreEletronica, models.GenreFunk}},
	{Name: "Boteco da Viola", City: "Bragança Paulista", Genres: []models.Genre{models.GenreSertanejo, models.GenreMPB}},
	{Name: "Subsolo Rap Club", City: "São Paulo", Genres: []models.Genre{models.GenreRap, models.GenreFunk}},
	{Name: "Jazz & Cia", City: "Campinas", Genres: []models.Genre{models.GenreJazz, models.GenreMPB}},
}

// matchVenues filters the directory by genre overlap, then narrows by city
// when that still leaves options, falling back to a random sample of the
// whole directory when nothing overlaps.
func matchVenues(directory []Venue, genre models.Genre, city string, rng *rand.Rand, limit int) []Venue {
	var byGenre []Venue
	for _, v := range directory {
		for _, g := range v.Genres {
			if g == genre {
				byGenre = append(byGenre, v)
				break
			}
		}
	}

	if len(byGenre) > 0 && city != "" {
		var byCity []Venue
		for _, v := range byGenre {
			if strings.EqualFold(v.City, city) {
				byCity = append(byCity, v)
			}
		}
		if len(byCity) > 0 {
			byGenre = byCity
		}
	}

	if len(byGenre) == 0 {
		// Random sample from the full directory.
		perm := rng.Perm(len(directory))
		for _, idx := range perm {
			byGenre = append(byGenre, directory[idx])
			if len(byGenre) == limit {
				break
			}
		}
	}

	if len(byGenre) > limit {
		byGenre = byGenre[:limit]
	}
	return byGenre
}

// mockAvailability stands in for a real availability engine: it returns a
// randomized set of upcoming dates, possibly empty.
func mockAvailability(rng *rand.Rand) []string {
	all := []string{
		"sexta, 20h", "sábado, 21h", "domingo, 19h",
		"quinta que vem, 20h", "sábado que vem, 22h",
	}
	n := rng.Intn(len(all) + 1)
	perm := rng.Perm(len(all))
	var dates []string
	for _, idx := range perm[:n] {
		dates = append(dates, all[idx])
	}
	return dates
}
