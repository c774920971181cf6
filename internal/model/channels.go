package model

import "strings"

// AnalysisChannelPrefix prefixes every per-symbol analysis PubSub channel.
const AnalysisChannelPrefix = "pub:analysis:"

// AnalysisChannelPattern matches all analysis channels (Redis PSUBSCRIBE).
const AnalysisChannelPattern = AnalysisChannelPrefix + "*"

// AnalysisChannel returns the PubSub channel for a symbol's analyses,
// e.g. "pub:analysis:AAPL".
func AnalysisChannel(symbol string) string {
	return AnalysisChannelPrefix + strings.ToUpper(symbol)
}

// SymbolFromChannel extracts the symbol from an analysis channel.
// Returns "" for channels outside the analysis namespace.
func SymbolFromChannel(channel string) string {
	if !strings.HasPrefix(channel, AnalysisChannelPrefix) {
		return ""
	}
	return channel[len(AnalysisChannelPrefix):]
}
