package telegram

import (
	"strings"

	"github.com/bezpauzy/eva-bot/internal/models"
)

type Topic string

const (
	TopicHotFlashes Topic = "hot_flashes"
	TopicSleep      Topic = "sleep"
	TopicMood       Topic = "mood"
	TopicWeight     Topic = "weight"
)

// TopicContent renders the canned HTML answer for a free topic.
type TopicContent interface {
	Template(topic Topic, age *models.AgeRange) string
}

type topicCopy struct {
	title string
	body  string
	byAge map[models.AgeRange]string
}

// DefaultTopics is the built-in template set keyed by topic and age bucket.
type DefaultTopics struct{}

var defaultTopics = map[Topic]topicCopy{
	TopicHotFlashes: {
		title: "🌡️ Приливы",
		body: "Приливы бывают у 75% женщин в период менопаузы. Это внезапное ощущение жара в лице, шее и груди, " +
			"иногда с потливостью и сердцебиением.\n\n" +
			"Что помогает:\n• одежда слоями и прохладная спальня\n• меньше алкоголя, острого и горячих напитков\n" +
			"• регулярная физическая активность\n• медленное дыхание во время прилива",
		byAge: map[models.AgeRange]string{
			models.Age40to45: "В 40-45 лет приливы часто первый признак перименопаузы. Отметьте в календаре, как меняется цикл.",
			models.Age46to50: "В 46-50 лет приливы обычно усиливаются. Обсудите с гинекологом варианты терапии, их сейчас много.",
			models.Age50Plus: "После 50 приливы могут длиться годами. Менопаузальная гормональная терапия остаётся самым эффективным методом, если нет противопоказаний.",
		},
	},
	TopicSleep: {
		title: "😴 Сон",
		body: "Нарушения сна в менопаузе связаны с колебаниями эстрогена и прогестерона, ночными приливами и тревожностью.\n\n" +
			"Что помогает:\n• ложиться и вставать в одно время\n• прохладная тёмная спальня\n" +
			"• без экранов за час до сна\n• кофеин только до обеда",
		byAge: map[models.AgeRange]string{
			models.Age40to45: "В 40-45 лет сон часто ухудшается перед менструацией. Ведите дневник сна, чтобы увидеть связь с циклом.",
			models.Age46to50: "В 46-50 лет частая причина пробуждений ночные приливы. Их лечение обычно улучшает и сон.",
			models.Age50Plus: "После 50 стоит исключить апноэ сна: его риск после менопаузы растёт. Храп и дневная сонливость повод обратиться к врачу.",
		},
	},
	TopicMood: {
		title: "🌈 Настроение",
		body: "Раздражительность, тревога и перепады настроения частые спутники гормональной перестройки. Это не слабость характера.\n\n" +
			"Что помогает:\n• регулярное движение, особенно на улице\n• общение и поддержка близких\n" +
			"• техники расслабления и дыхания\n• достаточный сон",
		byAge: map[models.AgeRange]string{
			models.Age40to45: "В 40-45 лет симптомы могут напоминать усиленный ПМС. Если они мешают жить, обсудите это с врачом.",
			models.Age46to50: "В 46-50 лет риск депрессии временно повышается. Стойко сниженное настроение дольше двух недель требует консультации специалиста.",
			models.Age50Plus: "После 50 настроение обычно стабилизируется. Если этого не происходит, помощь психотерапевта и врача действительно работает.",
		},
	},
	TopicWeight: {
		title: "⚖️ Вес",
		body: "С возрастом замедляется обмен веществ, а снижение эстрогена смещает отложение жира в область живота.\n\n" +
			"Что помогает:\n• силовые тренировки 2-3 раза в неделю\n• белок в каждом приёме пищи\n" +
			"• меньше сахара и ультрапереработанных продуктов\n• сон 7-8 часов",
		byAge: map[models.AgeRange]string{
			models.Age40to45: "В 40-45 лет важно сохранить мышечную массу: именно она поддерживает обмен веществ.",
			models.Age46to50: "В 46-50 лет следите за окружностью талии: больше 80 см повод проверить сахар и холестерин.",
			models.Age50Plus: "После 50 добавьте упражнения на баланс и контроль витамина D для здоровья костей.",
		},
	},
}

func (DefaultTopics) Template(topic Topic, age *models.AgeRange) string {
	c, ok := defaultTopics[topic]
	if !ok {
		return textSelectAnotherTopic
	}
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(c.title)
	b.WriteString("</b>\n\n")
	b.WriteString(c.body)
	if age != nil {
		if note, ok := c.byAge[*age]; ok {
			b.WriteString("\n\n<i>")
			b.WriteString(note)
			b.WriteString("</i>")
		}
	}
	b.WriteString("\n\nЕсли хотите разобраться подробнее, задайте свой вопрос Еве 💜")
	return b.String()
}
