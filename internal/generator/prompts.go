package generator

import (
	"fmt"
	"strings"
)

// StylistInstruction is the system instruction for outfit suggestions.
// The five dash-prefixed sections are what the mobile client renders.
const StylistInstruction = `Ты — модный ИИ-стилист. На основе настроения и пола предложи цельный наряд на СЕГОДНЯ.
Формат отвечай кратко и практично:
— Верх:
— Низ:
— Обувь:
— Аксессуары:
— Палитра:
(1–2 предложения, почему это подойдёт сегодня.)`

// AnalystInstruction is the system instruction for photo analysis.
const AnalystInstruction = `Ты — модный ИИ-стилист. Твоя задача — проанализировать фотографию человека и дать оценку его образу. Отвечай на русском языке. Твой ответ должен быть четко структурирован по четырем пунктам и никак иначе:

Вы одеты в: [краткий список одежды на фото]
Ваш стиль: [название стиля, которое лучше всего описывает образ]
Оценка образа: [одно-два прилагательных, описывающих образ]
Что можно добавить: [1-3 конкретных совета, что добавить или изменить]`

// AnalysisRequest accompanies the photo in an analysis call.
const AnalysisRequest = "Проанализируй одежду на этом фото."

// OutfitPrompt is the user turn for an outfit suggestion.
func OutfitPrompt(mood, gender string) string {
	return fmt.Sprintf("Сегодня. Пол: %s. Настроение: %s.\n"+
		"Собери удобный и стильный городской образ на текущий сезон (без упора на бренды).",
		gender, mood)
}

// ImagePrompt describes the pixel-art picture for an outfit.
func ImagePrompt(outfit, gender string) string {
	figure := "a person"
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "male", "мужской", "м":
		figure = "a young man"
	case "female", "женский", "ж":
		figure = "a young woman"
	}

	return fmt.Sprintf("Pixel art, 16-bit game sprite style, full-body front view of %s "+
		"standing on a plain light background, wearing exactly this outfit:\n%s\n"+
		"Crisp square pixels, limited palette, no text, no watermark, no logos.",
		figure, strings.TrimSpace(outfit))
}
