package telegram

const consentDocURL = "https://docs.google.com/document/d/1fStbtSHh-prCmIEPR4mdcbk-g-LpahB8k2nyDLdizIc/edit?usp=sharing"

const textConsentTemplate = `👋 Добро пожаловать в "Без |Паузы"!

📋 СОГЛАСИЕ НА ОБРАБОТКУ ПЕРСОНАЛЬНЫХ ДАННЫХ

Для работы бота необходимо ваше согласие на обработку данных согласно ФЗ-152.

Что мы обрабатываем:
- Telegram ID и username
- Текст ваших запросов и ответов
- Возрастная группа
- Данные о подписке
- История запросов

Мы НЕ собираем:
❌ Email, телефон, имя, фамилию, паспортные данные, ИНН

Ваши права:
✅ Получить копию данных: /export_my_data
✅ Удалить все данные: /delete_my_data
✅ Отменить подписку: /cancel_subscription

📖 Полная версия документа:
%s

Нажимая "Согласен", вы подтверждаете, что:
- Прочитали условия обработки данных
- Понимаете цели и способы обработки
- Достигли возраста 18 лет

Согласие можно отозвать в любой момент через команду /delete_my_data или написав на %s`

const (
	textUnknownCommand   = "Неизвестная команда. Используйте /start для начала работы."
	textUserNotFound     = "Пользователь не найден. Используйте /start для регистрации."
	textDeleteNotFound   = "Пользователь не найден."
	textDeleted          = "✅ Все ваши данные удалены. Вы можете начать заново с команды /start."
	textCancelled        = "✅ Ваша подписка отменена. Вы можете возобновить её в любое время."
	textCancelFailed     = "❌ Произошла ошибка при отмене подписки. Пожалуйста, обратитесь в поддержку."
	textHistoryEmpty     = "📝 История запросов пуста. Начните общение с Евой!"
	textExportTooLong    = "Ваши данные готовы к экспорту. Функция отправки файла будет реализована в ближайшее время."
	textGenericFailure   = "❌ Что-то пошло не так. Пожалуйста, попробуйте позже."
	textWelcomeStart     = "👋 Добро пожаловать! Для начала работы используйте команду /start"
	textNeedSubscription = "❌ Для общения с Евой необходима активная подписка.\n\nИспользуйте /start для получения информации о подписках."
	textSaveFailed       = "❌ Произошла ошибка при сохранении вашего запроса. Пожалуйста, попробуйте еще раз."
	textProcessFailed    = "❌ Произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте еще раз позже."
	textCallbackFailed   = "❌ Произошла ошибка при обработке вашего действия. Пожалуйста, попробуйте еще раз."
	textRegisterFailed   = "❌ Произошла ошибка при регистрации. Пожалуйста, попробуйте позже или обратитесь в поддержку: %s"
	textVideoDenied      = "❌ Доступ к видео доступен только по подписке."
	textVideoNotFound    = "❌ Видео не найдено."
	textVideosSoon       = "📹 Видео от врачей скоро появятся! Мы работаем над контентом.\n\nА пока вы можете задать любой вопрос Еве 💜"
)

const textAskAge = "✅ Спасибо за согласие!\n\nДля персонализации советов укажите, пожалуйста, ваш возраст:"

const textConsentDeclined = `Понимаю ваше решение 🌸

К сожалению, без согласия на обработку данных я не могу предоставить персонализированные рекомендации.

Если передумаете, используйте команду /start для начала работы.

Будьте здоровы! 💜`

const textFreeTopics = `Отлично! Информация сохранена 📝

Вы можете выбрать одну из популярных тем для быстрого ознакомления или сразу задать свой вопрос:`

const textDoctorThanks = `Рада помочь! 💜

Если у вас появятся еще вопросы, смело пишите. Я всегда на связи!

Здоровья вам! 🌸`

const textSelectAnotherTopic = `Конечно! Задавайте свой вопрос, и я постараюсь помочь 💜

Вы можете спросить о:
• Симптомах менопаузы
• Гормональной терапии
• Питании и образе жизни
• Рекомендациях врачей
• И многом другом!

Просто напишите ваш вопрос 👇`

const textThankYou = `Рада была помочь! 🌸

Если у вас появятся новые вопросы, я всегда на связи. Просто напишите мне в любое время!

Будьте здоровы и берегите себя! 💜

<i>Полезные команды:</i>
/history - история ваших вопросов
/export_my_data - экспорт ваших данных
/delete_my_data - удалить все данные`

const textPaymentTemplate = `💳 <b>Подписка на "Без |Паузы"</b>

Получите доступ к:
✨ Неограниченным вопросам персональной помощнице Еве
📚 Эксклюзивным материалам и гайдам
🎥 Видео от врачей с подробными объяснениями
📖 Полной базе знаний о женском здоровье

<b>Тарифы:</b>
• Месяц — 800₽
• 3 месяца — 2100₽ (экономия 300₽)
• Год — 7200₽ (экономия 2400₽)

Оформить подписку можно на сайте:
🔗 %s

После оплаты доступ активируется автоматически!

Есть вопросы? Напишите нам: %s`

const textVideosUpsell = `🎥 <b>Видео "Врачи Объясняют"</b>

Эксклюзивный контент от ведущих специалистов:
• Гинекологи-эндокринологи
• Кардиологи
• Неврологи
• Диетологи
• И другие эксперты

Видео доступны по подписке! 💜

Каждое видео — это подробный разбор важных тем с практическими рекомендациями от врачей с опытом 10+ лет.`
