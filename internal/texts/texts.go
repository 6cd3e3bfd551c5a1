// Package texts holds every user-facing message in one place. All texts are
// Russian: the bot serves a Russian-language jobs channel.
package texts

import (
	"fmt"
	"strings"
)

func Welcome(channel, discussionGroup, admin string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Здравствуйте! Это бот канала %s — объявления о работе для водителей и машинистов.\n\n", channel)
	b.WriteString("Чтобы разместить объявление, отправьте команду /post и следуйте подсказкам.\n")
	b.WriteString("Правила размещения: /rules\n")
	if discussionGroup != "" {
		fmt.Fprintf(&b, "Группа обсуждений: %s\n", discussionGroup)
	}
	fmt.Fprintf(&b, "Вопросы: t.me/%s", admin)
	return b.String()
}

func Rules(channel, admin string, resumePhrases, vacancyPhrases []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Правила размещения объявлений в канале %s\n\n", channel)
	fmt.Fprintf(&b, "1. Вы должны быть подписаны на канал %s. Бот проверяет подписку автоматически.\n\n", channel)
	b.WriteString("2. Объявление подаётся через команду /post: сначала бот попросит номер телефона для связи, затем текст объявления. Одно текстовое сообщение, без фото, файлов и ссылок.\n\n")
	b.WriteString("3. Текст объявления должен начинаться с одной из фраз:\n\n")
	b.WriteString("Для соискателей (резюме):\n")
	b.WriteString(phraseList(resumePhrases))
	b.WriteString("\nДля работодателей (вакансии):\n")
	b.WriteString(phraseList(vacancyPhrases))
	b.WriteString("\nВажно: фраза должна стоять в самом начале сообщения.\n\n")
	b.WriteString("4. Запрещены: спам, реклама, нецензурная лексика, объявления не по теме канала.\n\n")
	b.WriteString("5. После публикации объявление нельзя изменить или отозвать.\n\n")
	fmt.Fprintf(&b, "Помощь: t.me/%s", admin)
	return b.String()
}

func phraseList(phrases []string) string {
	var b strings.Builder
	for _, p := range phrases {
		fmt.Fprintf(&b, "• «%s»\n", p)
	}
	return b.String()
}

func NotSubscribed(channel string) string {
	return fmt.Sprintf("Чтобы разместить объявление, подпишитесь на канал %s и отправьте /post ещё раз.", channel)
}

const AskPhone = "Отправьте номер телефона для связи (например, 89991234567) или поделитесь контактом через скрепку. Отменить: /cancel"

const AskPhoneAgain = "Не получилось распознать номер. Отправьте телефон в формате 89991234567 или +79991234567. Отменить: /cancel"

const PhoneBeforeText = "Сначала нужен номер телефона для связи, текст объявления будет следующим шагом. Отменить: /cancel"

const AskText = "Номер принят. Теперь отправьте текст объявления одним сообщением. Начните с одной из фраз из /rules. Отменить: /cancel"

const TextOnly = "Бот принимает только текст: фото, видео, файлы и голосовые прикладывать нельзя."

const Cancelled = "Подача объявления отменена. Начать заново: /post"

const NothingToCancel = "Сейчас нечего отменять. Разместить объявление: /post"

const UnknownCommand = "Не знаю такой команды. Доступны /post, /rules и /cancel."

const EmptyMessage = "Сообщение пустое. Отправьте текст объявления."

func RejectedBanned(admin string) string {
	return fmt.Sprintf("Объявление отклонено: в тексте найдены запрещённые слова. Перечитайте правила (/rules) и отправьте объявление заново. Вопросы: t.me/%s", admin)
}

func RejectedNoPhrase(admin string) string {
	return fmt.Sprintf("Объявление отклонено: текст не начинается с разрешённой фразы. Список фраз — в /rules. Вопросы: t.me/%s", admin)
}

func Published(channel string) string {
	return fmt.Sprintf("Готово! Объявление опубликовано в канале %s.", channel)
}

func PublishFailed(admin string) string {
	return fmt.Sprintf("Не получилось опубликовать объявление, попробуйте позже. Если ошибка повторяется — напишите t.me/%s", admin)
}

func Onboarding(channel string) string {
	return fmt.Sprintf("Спасибо за подписку на %s! Теперь вы можете размещать объявления через /post.", channel)
}

func UnsubscribeQuestion(channel string) string {
	return fmt.Sprintf("Вы отписались от канала %s. Подскажите, что нам стоило бы улучшить? Просто ответьте на это сообщение.", channel)
}

func ContactLine(phone string) string {
	return "Связь: " + phone
}

const StartHint = "Чтобы разместить объявление, отправьте /post. Правила: /rules"
