package intent

import (
	"strings"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// intentKeywords maps each fallback-classifiable intent to its keyword list.
// Classification counts substring hits per intent and picks the highest; ties
// resolve in the fixed priority order below.
var intentKeywords = map[models.Intent][]string{
	models.IntentScheduleInquiry: {
		"agenda", "data", "datas", "disponível", "disponivel", "marcar",
		"show", "tocar", "apresentar", "quando", "booking",
	},
	models.IntentInitialRegistration: {
		"cadastro", "cadastrar", "registrar", "quero tocar", "sou artista",
		"somos uma banda", "register",
	},
	models.IntentUpdateData: {
		"atualizar", "mudar", "alterar", "corrigir", "trocar", "update",
	},
	models.IntentVenueInfo: {
		"endereço", "endereco", "onde fica", "localização", "localizacao",
		"horário", "horario", "estrutura", "equipamento", "palco",
	},
	models.IntentConfirmBooking: {
		"confirmo", "confirmar", "fechado", "pode marcar", "aceito", "topo",
	},
	models.IntentCancel: {
		"cancelar", "desistir", "deixa pra lá", "deixa pra la", "não quero mais", "nao quero mais",
	},
	models.IntentFeedback: {
		"feedback", "sugestão", "sugestao", "reclamação", "reclamacao", "elogio",
	},
	models.IntentFarewell: {
		"tchau", "até mais", "ate mais", "falou", "obrigado", "obrigada", "valeu", "bye",
	},
	models.IntentGreeting: {
		"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "e aí", "e ai", "hello", "hi",
	},
}

// keywordPriority fixes tie-breaking: more specific intents win over greetings.
var keywordPriority = []models.Intent{
	models.IntentConfirmBooking,
	models.IntentCancel,
	models.IntentScheduleInquiry,
	models.IntentUpdateData,
	models.IntentInitialRegistration,
	models.IntentVenueInfo,
	models.IntentFeedback,
	models.IntentFarewell,
	models.IntentGreeting,
}

// KeywordClassify is the cheap fallback tier beneath the model-backed
// analyzer: a closed-enum classifier over substring keyword counts.
// Returns IntentUnknown when nothing matches.
func KeywordClassify(message string) models.Intent {
	m := " " + strings.ToLower(strings.TrimSpace(message)) + " "
	best := models.IntentUnknown
	bestHits := 0
	for _, it := range keywordPriority {
		hits := 0
		for _, kw := range intentKeywords[it] {
			if len(kw) <= 3 {
				// Short tokens need word boundaries to avoid matching inside
				// words ("oi" in "noite").
				if strings.Contains(m, " "+kw+" ") || strings.Contains(m, " "+kw+"!") ||
					strings.Contains(m, " "+kw+",") || strings.Contains(m, " "+kw+".") {
					hits++
				}
			} else if strings.Contains(m, kw) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = it
		}
	}
	return best
}
