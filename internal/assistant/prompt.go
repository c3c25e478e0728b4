package assistant

import (
	"strings"

	"github.com/wolfman30/estate-crm/internal/auth"
)

const (
	generalPromptEN = "You are the assistant of a real-estate brokerage CRM. Help agents with property sales questions, lead follow-up and drafting messages to clients. Be accurate and concise."
	crmPromptEN     = "You are the operations analyst of a real-estate brokerage CRM. Use the live CRM data below to answer questions about leads, pipeline health and channel status. Never invent figures that are not in the data."
	generalPromptAR = "أنت مساعد نظام إدارة علاقات العملاء لوكالة عقارية. ساعد الوكلاء في أسئلة المبيعات ومتابعة العملاء المحتملين وصياغة الرسائل."
	crmPromptAR     = "أنت محلل العمليات في نظام إدارة علاقات العملاء لوكالة عقارية. استخدم البيانات الحية أدناه للإجابة عن أسئلة العملاء المحتملين وحالة المبيعات والقنوات."

	arabicOverride = `LANGUAGE OVERRIDE (mandatory):
- Reply ONLY in Arabic, even if the user or the data is in English.
- Keep property names, numbers and currency codes as written.
- Answer directly in short paragraphs. Do not repeat the question.`

	speedInstruction = "Answer directly and briefly. Do not repeat the question."
)

// ResolveLocale maps a locale header or body value to a supported locale.
// Anything starting with "ar" is Arabic; everything else is English.
func ResolveLocale(raw string) Locale {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), string(LocaleArabic)) {
		return LocaleArabic
	}
	return LocaleEnglish
}

// BuildSystemPrompt composes the base prompt, the live context, the caller's
// role and the locale instruction block.
func BuildSystemPrompt(mode Mode, locale Locale, liveContext string, caller auth.Caller) string {
	var b strings.Builder
	b.WriteString(basePrompt(mode, locale))

	if ctx := strings.TrimSpace(liveContext); ctx != "" {
		b.WriteString("\n\n## Live CRM context\n")
		b.WriteString(ctx)
	}
	if caller.Role != "" {
		b.WriteString("\n\nThe user is a CRM ")
		b.WriteString(string(caller.Role))
		if !caller.Elevated() {
			b.WriteString(" and may only see their own assigned leads")
		}
		b.WriteString(".")
	}

	b.WriteString("\n\n")
	if locale == LocaleArabic {
		b.WriteString(arabicOverride)
	} else {
		b.WriteString(speedInstruction)
	}
	return b.String()
}

func basePrompt(mode Mode, locale Locale) string {
	switch {
	case mode == ModeCRM && locale == LocaleArabic:
		return crmPromptAR
	case mode == ModeCRM:
		return crmPromptEN
	case locale == LocaleArabic:
		return generalPromptAR
	default:
		return generalPromptEN
	}
}

// TruncateHistory keeps at most max turns before the final message, which
// is always kept. System turns from the client are discarded, consecutive
// turns of one role are merged, and the result always opens with a user turn
// because Bedrock and Gemini reject conversations that start elsewhere.
func TruncateHistory(messages []ChatMessage, max int) []ChatMessage {
	merged := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Role == m.Role {
			merged[n-1].Content += "\n\n" + m.Content
			continue
		}
		merged = append(merged, m)
	}
	if len(merged) > max+1 {
		merged = merged[len(merged)-max-1:]
	}
	for len(merged) > 0 && merged[0].Role != RoleUser {
		merged = merged[1:]
	}
	return append([]ChatMessage(nil), merged...)
}
