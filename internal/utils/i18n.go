package utils

// Minimal server-side i18n for fixed keys.
// Question texts and UI strings live in the frontend; the server renders advice tiers and labels.

// SupportedLocales lists the locales the server has translations for.
var SupportedLocales = []string{"en", "ar"}

var translations = map[string]map[string]string{
	"en": {
		"health.ok": "ok",

		"category.psychology":    "psychology",
		"category.health":        "health",
		"category.spirituality":  "spirituality",
		"category.relationships": "relationships",
		"category.finances":      "finances",

		"advice.excellent":       "Your %s score is excellent. Keep maintaining the habits that got you here.",
		"advice.good":            "You are making good progress in %s. A few small changes will take you further.",
		"advice.on_track":        "You are on the right path in %s. Pick one area to focus on this week.",
		"advice.needs_attention": "Your %s needs attention. Start with one small, consistent step.",

		"warning.draft_not_saved": "Your answer was recorded but could not be saved; it may be lost if you reload.",
	},
	"ar": {
		"health.ok": "تمام",

		"category.psychology":    "الجانب النفسي",
		"category.health":        "الصحة",
		"category.spirituality":  "الجانب الروحي",
		"category.relationships": "العلاقات",
		"category.finances":      "المال",

		"advice.excellent":       "نتيجتك في %s ممتازة. حافظ على العادات التي أوصلتك إلى هنا.",
		"advice.good":            "تقدمك في %s جيد. بعض التغييرات الصغيرة ستأخذك أبعد.",
		"advice.on_track":        "أنت على الطريق الصحيح في %s. اختر جانباً واحداً لتركز عليه هذا الأسبوع.",
		"advice.needs_attention": "%s يحتاج إلى اهتمام. ابدأ بخطوة صغيرة ثابتة.",

		"warning.draft_not_saved": "تم تسجيل إجابتك لكن تعذر حفظها، وقد تضيع عند إعادة تحميل الصفحة.",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
