package flow

import (
	"fmt"
	"strings"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// User-facing copy. The bot persona is "Luna"; replies are Brazilian
// Portuguese to match the audience.
const (
	msgWelcome = "Oi! Eu sou a Luna, assistente de agendamento da casa. 🎵 Vou te ajudar a cadastrar seu perfil de artista. Pra começar: qual o nome da banda ou artista?"

	msgAskName  = "Qual o nome da banda ou artista?"
	msgAskGenre = "Legal! E qual estilo musical vocês tocam? (rock, MPB, sertanejo...)"
	msgAskCity  = "De qual cidade vocês são?"
	msgAskLinks = "Pra fechar: me manda um link de rede social (pode ser @ do Instagram, YouTube ou Spotify)."

	msgNameTooShort = "Hmm, esse nome ficou muito curto. Pode me mandar o nome completo da banda ou artista?"
	msgLinkInvalid  = "Não consegui reconhecer esse link. Me manda um @ do Instagram ou um link do YouTube/Spotify?"

	msgTechnicalDifficulty = "Estamos com uma dificuldade técnica no momento. 😥 Pode tentar de novo em alguns minutos?"
	msgPersistApology      = "Tive um problema pra salvar seu cadastro. 😥 Me manda qualquer mensagem que eu tento de novo!"
	msgCeilingApology      = "Acho que a gente se enrolou por aqui. 😅 Vou encerrar por enquanto — manda /reiniciar quando quiser começar de novo!"
	msgNeedsHuman          = "Não tenho certeza se entendi. 🤔 Vou pedir pra alguém da equipe te responder, mas enquanto isso pode reformular?"

	msgResetDone = "Prontinho, começamos do zero! 🧹 Qual o nome da banda ou artista?"

	msgFarewellWithProfile = "Valeu! 🤘 Seu cadastro tá salvo por aqui — qualquer coisa é só chamar. Até a próxima!"
	msgFarewellNoProfile   = "Tranquilo! Quando quiser cadastrar sua banda é só mandar um oi. Até mais! 👋"

	msgVenueInfo = "A casa fica no centro, palco pra banda completa, som e luz inclusos. Shows de quinta a domingo, a partir das 20h. Quer ver datas disponíveis?"

	msgFeedbackThanks = "Obrigada pelo retorno! 🙏 Vou repassar pra equipe."

	msgCancelled = "Sem problema, cancelei por aqui. Se mudar de ideia é só chamar! 👋"
)

// Copy the delivery layers surface when the flow never ran: the webhook uses
// MsgSlowDown when a reply misses the synchronous ceiling, and both the
// webhook and the inbound pump use MsgSystemBusy on queue backpressure.
const (
	MsgSlowDown   = "Tô um pouco lenta agora. 🐢 Já te respondo por aqui, só um instante!"
	MsgSystemBusy = "Estamos com muitas mensagens agora. 😅 Me chama de novo em um minutinho?"
)

// menuFor renders the personalized post-registration menu.
func menuFor(name string) string {
	return fmt.Sprintf("Oi, %s! 🎶 Que bom te ver por aqui. O que você quer fazer?\n\n"+
		"1️⃣ Ver datas disponíveis pra show\n"+
		"2️⃣ Atualizar dados do perfil\n"+
		"3️⃣ Informações sobre a casa\n\n"+
		"É só responder com o número ou me contar o que precisa!", name)
}

// confirmationSummary echoes the key fields back after a successful save.
func confirmationSummary(p *models.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cadastro salvo! 🎉 Confere se tá tudo certo:\n\n")
	fmt.Fprintf(&b, "🎤 Nome: %s\n", p.Name)
	fmt.Fprintf(&b, "🎵 Estilo: %s\n", p.Genre)
	if p.City != "" {
		fmt.Fprintf(&b, "📍 Cidade: %s\n", p.City)
	}
	for platform, url := range map[string]string{
		"Instagram": p.SocialLinks.Instagram,
		"YouTube":   p.SocialLinks.YouTube,
		"Spotify":   p.SocialLinks.Spotify,
	} {
		if url != "" {
			fmt.Fprintf(&b, "🔗 %s: %s\n", platform, url)
		}
	}
	b.WriteString("\nAgora é só me chamar pra ver datas de show! 🗓️")
	return b.String()
}

// missingFieldsPrompt names exactly which fields an incomplete profile lacks.
func missingFieldsPrompt(name string, missing []string) string {
	return fmt.Sprintf("Oi, %s! Encontrei seu cadastro aqui, mas faltam alguns dados: %s. Vamos completar?",
		name, strings.Join(missing, ", "))
}

// statusReport renders the /status command output.
func statusReport(state *models.ConversationState) string {
	return fmt.Sprintf("📋 Status do cadastro:\n- Completo: %.0f%%\n- Etapa atual: %s\n- Tentativas: %d",
		state.Progress()*100, state.Stage, state.CollectionAttempts)
}

// clarifyMessage maps a profile validation error to a field-specific request.
func clarifyMessage(err error) string {
	switch err {
	case models.ErrProfileNameMissing, models.ErrProfileNameTooShort, models.ErrProfileNameTooLong:
		return "O nome do artista não ficou legal. Pode me mandar de novo?"
	case models.ErrProfileGenreMissing:
		return "Faltou o estilo musical. Qual gênero vocês tocam?"
	case models.ErrYearsOutOfRange:
		return "Esse tempo de estrada não bateu. Quantos anos de experiência vocês têm?"
	default:
		return "Algum dado não ficou certo. Pode revisar a última informação que me mandou?"
	}
}

// StageAck returns the context-aware placeholder emitted immediately on
// enqueue, varying by the subject's current stage.
func StageAck(stage models.StateType) string {
	switch stage {
	case models.StateStart:
		return "Oi! Só um instante que já te respondo... 🎵"
	case models.StateCollectingName:
		return "Anotando o nome... ✍️"
	case models.StateCollectingGenre:
		return "Boa, registrando o estilo... 🎸"
	case models.StateCollectingCity:
		return "Entendi, conferindo a cidade... 📍"
	case models.StateCollectingLinks:
		return "Abrindo o link... 🔗"
	case models.StateValidating, models.StatePersisting:
		return "Salvando seu cadastro... 💾"
	case models.StateScheduleInquiry:
		return "Olhando a agenda... 🗓️"
	default:
		return "Recebi! Já te respondo... 💬"
	}
}
