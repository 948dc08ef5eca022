package chatclient

const (
	QuizInflammation = "inflammation"
	QuizMRS          = "mrs"
)

type QuizContext struct {
	Type  string
	Level string
}

// WelcomeContext is where the visitor came from.
type WelcomeContext struct {
	Quiz        *QuizContext
	ArticleSlug string
}

const textWelcomeDefault = "Привет! Я Ева, ваш персональный помощник по женскому здоровью. Чем могу помочь?"

// WelcomeText greets a visitor without history. short drops the offer of
// help and is used when the history could not be loaded.
func WelcomeText(wc WelcomeContext, short bool) string {
	switch {
	case wc.Quiz != nil:
		name := "Шкала MRS"
		if wc.Quiz.Type == QuizInflammation {
			name = "Индекс воспаления"
		}
		text := `Привет! Я вижу, что вы только что прошли квиз "` + name + `". `
		if wc.Quiz.Level != "" {
			text += "Ваш результат: " + wc.Quiz.Level + "."
		}
		text += " Чем могу помочь?"
		if !short {
			text += " Могу ответить на вопросы о результатах, дать рекомендации или объяснить, что означают ваши баллы."
		}
		return text
	case wc.ArticleSlug != "":
		if short {
			return "Привет! Я вижу, что вы читали статью. Есть вопросы по этой теме?"
		}
		return "Привет! Я вижу, что вы читали статью. Есть вопросы по этой теме? Я могу помочь разобраться и дать персональные рекомендации."
	default:
		return textWelcomeDefault
	}
}
