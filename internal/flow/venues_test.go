package flow

import (
	"math/rand"
	"testing"

	"github.com/PalcoLivre/StageLink/internal/models"
)

func TestMatchVenuesByGenreAndCity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	got := matchVenues(defaultPartnerVenues, models.GenreSertanejo, "Campinas", rng, 3)
	if len(got) != 1 || got[0].Name != "Villa Sertaneja" {
		t.Fatalf("got %v, want Villa Sertaneja only", got)
	}
}

func TestMatchVenuesGenreOnlyWhenCityMisses(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// No rock venue in Campinas: city narrowing must not empty the result.
	got := matchVenues(defaultPartnerVenues, models.GenreRock, "Campinas", rng, 3)
	if len(got) == 0 {
		t.Fatal("city miss must fall back to genre matches")
	}
	for _, v := range got {
		found := false
		for _, g := range v.Genres {
			if g == models.GenreRock {
				found = true
			}
		}
		if !found {
			t.Errorf("venue %s does not host rock", v.Name)
		}
	}
}

func TestMatchVenuesRandomFallback(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	got := matchVenues(defaultPartnerVenues, models.GenreGospel, "", rng, 3)
	if len(got) != 3 {
		t.Fatalf("fallback sample = %d venues, want 3", len(got))
	}
}

func TestMatchVenuesRespectsLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	got := matchVenues(defaultPartnerVenues, models.GenreFunk, "", rng, 2)
	if len(got) > 2 {
		t.Fatalf("limit ignored: %d venues", len(got))
	}
}

func TestMockAvailabilityBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		dates := mockAvailability(rng)
		if len(dates) > 5 {
			t.Fatalf("availability returned %d dates", len(dates))
		}
	}
}
