package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Decision actions. STAY and HOLD are both no-ops; STAY is flat, HOLD keeps
// an open position untouched.
const (
	ActionLong     = "LONG"
	ActionShort    = "SHORT"
	ActionStay     = "STAY"
	ActionHold     = "HOLD"
	ActionClose    = "CLOSE"
	ActionAdd      = "ADD"
	ActionUpdateSL = "UPDATE_SL"
)

var validActions = map[string]bool{
	ActionLong:     true,
	ActionShort:    true,
	ActionStay:     true,
	ActionHold:     true,
	ActionClose:    true,
	ActionAdd:      true,
	ActionUpdateSL: true,
}

// NextSetup is the oracle's stated plan for the following cycle.
type NextSetup struct {
	ShortLevel float64 `json:"short_level"`
	LongLevel  float64 `json:"long_level"`
	Comment    string  `json:"comment"`
}

// TradeDecision is the oracle's verdict for one cycle.
type TradeDecision struct {
	Action       string     `json:"action"`
	Reason       string     `json:"reason"`
	Confidence   float64    `json:"confidence"`
	StopLoss     float64    `json:"stopLoss"`
	TakeProfit   float64    `json:"takeProfit"`
	RiskPerTrade float64    `json:"riskPerTrade"`
	SetupReason  string     `json:"setup_reason,omitempty"`
	StrategyUsed string     `json:"strategy_used,omitempty"`
	NextSetup    *NextSetup `json:"next_setup,omitempty"`
}

// ActivePositionSummary is the open-trade digest handed to the oracle.
type ActivePositionSummary struct {
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Size       float64 `json:"size"`
	PnlPercent string  `json:"pnl_percent"`
	TakeProfit float64 `json:"tp_price,omitempty"`
	StopLoss   float64 `json:"sl_price,omitempty"`
}

// OracleInput gathers everything one decision call needs.
type OracleInput struct {
	Indicators       *MultiFrameIndicators
	Market           MarketSnapshot
	OIHistory        []float64
	FundingHistory   []float64
	PreviousDecision *TradeDecision
	RecentTrades     string
	ActivePosition   *ActivePositionSummary
}

// Oracle asks Gemini for a structured trade decision. Any failure along the
// way (transport, bad JSON, unknown action) collapses to a STAY verdict so
// the engine never acts on garbage.
type Oracle struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOracle creates the decision adapter
func NewOracle(apiKey, model string) *Oracle {
	return &Oracle{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func stayDecision(reason string) TradeDecision {
	return TradeDecision{Action: ActionStay, Reason: reason, Confidence: 0}
}

// Decide runs one oracle call. It always returns a usable decision.
func (o *Oracle) Decide(ctx context.Context, input *OracleInput) TradeDecision {
	prompt := buildPrompt(input)

	text, err := o.generate(ctx, prompt)
	if err != nil {
		log.Printf("🚨 ORACLE: Generation failed: %v", err)
		return stayDecision("AI Error")
	}

	decision, err := parseDecision(text)
	if err != nil {
		log.Printf("🚨 ORACLE: Unusable response: %v", err)
		return stayDecision("AI Error")
	}
	return decision
}

// parseDecision strips markdown fencing and validates the action verb.
func parseDecision(text string) (TradeDecision, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var decision TradeDecision
	if err := json.Unmarshal([]byte(cleaned), &decision); err != nil {
		return TradeDecision{}, fmt.Errorf("decode decision: %w", err)
	}
	if !validActions[decision.Action] {
		return TradeDecision{}, fmt.Errorf("unknown action %q", decision.Action)
	}
	return decision, nil
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (o *Oracle) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{ResponseMimeType: "application/json"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiBaseURL, o.model, o.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty gemini response")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

const tradingRules = `
=== TRADING RULES (CRITICAL) ===

**RULE 1: Identify Market Structure**
1. Check H4/H1 EMA alignment:
   - EMA 50 > EMA 200 = BULLISH BIAS (only look for longs)
   - EMA 50 < EMA 200 = BEARISH BIAS (only look for shorts)

**RULE 2: Identify Price Location**
2. Where is price relative to key levels?
   - BULLISH BIAS: Wait for pullback to Support (H1/5m EMA 200, VWAP, Swing Low)
   - BEARISH BIAS: Wait for retracement to Resistance (H1/5m EMA 200, VWAP, Swing High)

**RULE 3: Micro Confirmation (White Zone)**
3. Use 1m White Zone Status as CONFIRMATION only:
   - BULLISH BIAS + Price bouncing from Support + WZ = UPTREND -> Consider LONG
   - BEARISH BIAS + Price rejecting from Resistance + WZ = DOWNTREND -> Consider SHORT
   - If WZ = CHOP or CHOP_RUBBING -> STAY (too noisy, avoid trading)

**RULE 4: Stop Loss Placement**
- LONG: SL must be BELOW the support level by at least $500
- SHORT: SL must be ABOVE the resistance level by at least $500

**RULE 5: Take Profit Placement**
- TP must target the NEXT major S/R level
- Minimum distance: $1000 from entry
- Minimum R:R ratio: 1.5:1

**CRITICAL WARNING**
- DO NOT enter trades just because price "touches" White Zone bands
- White Zone is NOT a simple support/resistance - it's a TREND FILTER
- Always verify the actual price position before making decisions
`

func buildPrompt(input *OracleInput) string {
	ind := input.Indicators
	var b strings.Builder

	b.WriteString("Act as an elite Autonomous AI Trader.\n")
	b.WriteString(tradingRules)

	fmt.Fprintf(&b, "\n### REAL-TIME MARKET DATA\n")
	fmt.Fprintf(&b, "Current Price: $%.2f\n", input.Market.Price)
	fmt.Fprintf(&b, "Funding: %.6f%% | OI: %.2f BTC\n", input.Market.FundingRate, input.Market.OpenInterest)
	fmt.Fprintf(&b, "OI Trend (oldest->newest): %s\n", formatSeries(input.OIHistory, "%.0f"))
	fmt.Fprintf(&b, "Funding Trend (oldest->newest): %s\n", formatSeries(input.FundingHistory, "%.6f"))

	fmt.Fprintf(&b, "\n### RECENT TRADING HISTORY (CRITICAL FOR LEARNING)\n%s\n", input.RecentTrades)
	b.WriteString(`
*** ANTI-REVENGE TRADING RULES ***
1. If last 2+ trades were LOSSES in the SAME direction -> AVOID that direction for next 2 cycles
2. If recent win rate < 40% -> Increase confidence threshold to 80%
3. NEVER enter the same direction immediately after a loss without strong confirmation
4. If unsure, choosing STAY is ALWAYS better than forcing a trade
5. Review the trading history CAREFULLY before making any decision
`)

	if input.PreviousDecision != nil {
		fmt.Fprintf(&b, "\n### PREVIOUS CYCLE DECISION\nAction: %s | Confidence: %.0f | Reason: %s\n",
			input.PreviousDecision.Action, input.PreviousDecision.Confidence, input.PreviousDecision.Reason)
	}

	fmt.Fprintf(&b, "\n### MACRO TREND CONTEXT (4H / 1H) - **PRIMARY DRIVER**\n")
	fmt.Fprintf(&b, "[4 Hour]\nEMA 50: %.0f\nEMA 200: %.0f\nSwing High/Low: $%.0f / $%.0f\nStructure: %s\n",
		ind.H4.EMA50, ind.H4.EMA200, ind.H4.Struct.High, ind.H4.Struct.Low, crossLabel(ind.H4))
	fmt.Fprintf(&b, "\n[1 Hour]\nEMA 50: %.0f\nEMA 200: %.0f\nSwing High/Low: $%.0f / $%.0f\nADX: %.1f\nStructure: %s\n",
		ind.H1.EMA50, ind.H1.EMA200, ind.H1.Struct.High, ind.H1.Struct.Low, ind.H1.ADX, crossLabel(ind.H1))

	fmt.Fprintf(&b, "\n### MICRO STRUCTURE (5m / 1m) - **ENTRY TIMING**\n")
	fmt.Fprintf(&b, "[5 Minute]\nVWAP (Intraday S/R): $%.0f\nEMA 200: $%.0f\nSwing High/Low: $%.0f / $%.0f\nRSI: %.1f\n",
		ind.M5.VWAP, ind.M5.EMA200, ind.M5.Struct.High, ind.M5.Struct.Low, ind.M5.RSI)
	fmt.Fprintf(&b, "\n[1 Minute - White Zone (Trend Band)]\nStatus: %s\nUpper Band: $%.0f\nLower Band: $%.0f\nCurrent Price: $%.2f\n",
		ind.M1.WhiteZone.Status, ind.M1.WhiteZone.Upper, ind.M1.WhiteZone.Lower, ind.M1.CurrentPrice)

	b.WriteString(`
*** CRITICAL WHITE ZONE INTERPRETATION ***
- UPTREND: Price trading ABOVE both bands -> Bullish momentum confirmed
- DOWNTREND: Price trading BELOW both bands -> Bearish momentum confirmed
- CHOP: Price oscillating WITHIN the bands -> No clear trend, use caution
- CHOP_RUBBING: Avoid trading - High noise, multiple false signals

DO NOT use White Zone as simple Support/Resistance touch points!
Use it to CONFIRM the micro trend direction only.
`)

	b.WriteString("\n### ACTIVE POSITION\n")
	if ap := input.ActivePosition; ap != nil {
		fmt.Fprintf(&b, "HOLDING %s | Entry: $%.2f | PnL: %s%% | TP: $%.2f | SL: $%.2f\n",
			ap.Side, ap.EntryPrice, ap.PnlPercent, ap.TakeProfit, ap.StopLoss)
	} else {
		b.WriteString("NO POSITION\n")
	}

	fmt.Fprintf(&b, `
### DECISION PROCESS (Step-by-Step)

STEP 1: Check Market Structure
- Look at H4/H1 EMA 50 vs EMA 200 alignment
- Is it Golden Cross (50>200) or Death Cross (50<200)?
- Record: BULLISH BIAS or BEARISH BIAS

STEP 2: Locate Price Position
- Current price: $%.2f
- If BULLISH BIAS: List distances to Support levels (5m EMA 200, H1 EMA 200, VWAP, Swing Low)
- If BEARISH BIAS: List distances to Resistance levels (5m EMA 200, H1 EMA 200, VWAP, Swing High)
- Is price ALREADY AT or NEAR a key level (within $300)?

STEP 3: Check White Zone Status
- What is the 1m WZ status?
- UPTREND/DOWNTREND = Trend confirmation available
- CHOP/CHOP_RUBBING = NO TRADE (too risky, wait for clarity)

STEP 4: Validate Setup (for NEW trades only)
- Entry: Is price at a key S/R level RIGHT NOW?
- SL: Must be $500+ away, placed BEHIND the structural level
- TP: Must be $1000+ away, targeting the NEXT major S/R level
- R:R: Calculate distance to TP / distance to SL. Must be >= 1.5

STEP 5: Make Decision
- IF all conditions met + WZ confirms -> LONG or SHORT (confidence >= 70)
- IF waiting for price to reach setup level -> STAY (explain what level you're waiting for)
- IF holding position -> HOLD, CLOSE, ADD, or UPDATE_SL (explain current status)

### CRITICAL: Price vs White Zone Reality Check
Before making ANY decision, verify the actual numbers:
- Current Price: $%.2f
- WZ Upper Band: $%.0f
- WZ Lower Band: $%.0f

DO NOT say "price touched WZ upper" if the numbers show price is below it!
Always state the actual price values in your reasoning.

### RESPONSE FORMAT (JSON)
{
  "action": "LONG" | "SHORT" | "STAY" | "CLOSE" | "ADD" | "UPDATE_SL" | "HOLD",
  "strategy_used": "TREND_A" | "RANGE_B",
  "reason": "Explain Structure (Cross) and S/R Level.",
  "confidence": Number (0-100),
  "stopLoss": Number,
  "takeProfit": Number,
  "riskPerTrade": Number,
  "setup_reason": "IF HOLDING: Explain management. IF NEW: Explain TP/SL placement citing S/R levels.",
  "next_setup": {
    "short_level": Number,
    "long_level": Number,
    "comment": "IF HOLDING: 'Monitoring for exit/add'. IF NEW: Plan for Primary Bias."
  }
}
`, input.Market.Price, input.Market.Price, ind.M1.WhiteZone.Upper, ind.M1.WhiteZone.Lower)

	return b.String()
}

func crossLabel(f FrameIndicators) string {
	if f.EMA50 > f.EMA200 {
		return "BULLISH (Golden Cross)"
	}
	return "BEARISH (Death Cross)"
}

func formatSeries(values []float64, valueFmt string) string {
	if len(values) == 0 {
		return "n/a"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf(valueFmt, v)
	}
	return strings.Join(parts, ", ")
}
