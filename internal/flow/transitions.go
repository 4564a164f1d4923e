package flow

import (
	"fmt"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// transitionTable declares the eligible next-states per state. The engine
// routes within these edges only; ValidateTransitions is run at construction
// so a bad edit fails fast instead of corrupting conversations.
var transitionTable = map[models.StateType][]models.StateType{
	models.StateStart: {
		models.StateCollectingName, models.StateCollectingGenre,
		models.StateCollectingCity, models.StateCollectingLinks,
		models.StateValidating, models.StateMainMenu, models.StateError,
	},
	models.StateCollectingName: {
		models.StateCollectingName, models.StateCollectingGenre,
		models.StateCollectingCity, models.StateCollectingLinks,
		models.StateValidating, models.StateError,
	},
	models.StateCollectingGenre: {
		models.StateCollectingGenre, models.StateCollectingCity,
		models.StateCollectingLinks, models.StateValidating, models.StateError,
	},
	models.StateCollectingCity: {
		models.StateCollectingCity, models.StateCollectingLinks,
		models.StateValidating, models.StateError,
	},
	models.StateCollectingLinks: {
		models.StateCollectingLinks, models.StateValidating, models.StateError,
	},
	models.StateValidating: {
		models.StateCollectingName, models.StateCollectingGenre,
		models.StateCollectingCity, models.StateCollectingLinks,
		models.StatePersisting, models.StateError,
	},
	models.StatePersisting: {
		models.StateValidating, models.StatePersisting, models.StateMainMenu,
		models.StateCompleted, models.StateError,
	},
	models.StateMainMenu: {
		models.StateMainMenu, models.StateScheduleInquiry, models.StatePartnerReferral,
		models.StateInfo, models.StateBookingConfirm, models.StateCompleted, models.StateError,
	},
	models.StateScheduleInquiry: {
		models.StateScheduleInquiry, models.StateMainMenu, models.StatePartnerReferral,
		models.StateBookingConfirm, models.StateCompleted, models.StateError,
	},
	models.StatePartnerReferral: {
		models.StatePartnerReferral, models.StateMainMenu, models.StateBookingConfirm,
		models.StateCompleted, models.StateError,
	},
	models.StateInfo: {
		models.StateInfo, models.StateMainMenu, models.StateScheduleInquiry,
		models.StatePartnerReferral, models.StateBookingConfirm,
		models.StateCompleted, models.StateError,
	},
	models.StateBookingConfirm: {
		models.StateMainMenu, models.StateCompleted, models.StateError,
	},
	models.StateCompleted: {
		models.StateMainMenu, models.StateScheduleInquiry, models.StatePartnerReferral,
		models.StateInfo, models.StateBookingConfirm, models.StateCompleted, models.StateError,
	},
	models.StateError: {
		models.StateStart, models.StateMainMenu, models.StateError,
	},
}

// ValidateTransitions checks every declared edge lands on a member of the
// state set.
func ValidateTransitions() error {
	for from, tos := range transitionTable {
		if !models.IsValidState(from) {
			return fmt.Errorf("transition table references unknown state %q", from)
		}
		for _, to := range tos {
			if !models.IsValidState(to) {
				return fmt.Errorf("transition %s -> %q targets unknown state", from, to)
			}
		}
	}
	return nil
}

// canTransition reports whether from -> to is a declared edge. Staying on the
// same state is always allowed.
func canTransition(from, to models.StateType) bool {
	if from == to {
		return true
	}
	for _, eligible := range transitionTable[from] {
		if eligible == to {
			return true
		}
	}
	return false
}
