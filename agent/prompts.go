package agent

import "fmt"

const tradingPromptTemplate = `You are Coffee AI's AI Trading Assistant

Analyze the provided market data and strategy signals (if available) to make a trading decision.

Market Data Criteria:
1. Price action relative to MA20 and MA40
2. RSI levels and trend
3. Volume patterns
4. Recent price movements

%s

Respond in this exact format:
1. First line must be one of: BUY, SELL, or NOTHING (in caps)
2. Then explain your reasoning, including:
   - Technical analysis
   - Strategy signals analysis (if available)
   - Risk factors
   - Market conditions
   - Confidence level (as a percentage, e.g. 75%%)

Remember:
- Coffee AI always prioritizes risk management! 🛡️
- Never trade USDC or SOL directly
- Consider both technical and strategy signals
`

func tradingPrompt(strategyContext, marketSummary string) string {
	return fmt.Sprintf(tradingPromptTemplate, strategyContext) +
		"\n\nMarket Data to Analyze:\n" + marketSummary
}

func allocationPrompt(totalSize, maxPositionSize float64, maxPositionPct, cashBufferPct float64, cashTokenAddress string, candidateTokens []string) string {
	return fmt.Sprintf(`You are Coffee AI's Portfolio Allocation AI
Given:
- Total portfolio size: $%.2f
- Maximum position size: $%.2f (%.0f%% of total)
- Minimum cash (USDC) buffer: %.0f%%
- Available tokens: %v
- USDC Address: %s

Provide a portfolio allocation that:
1. Never exceeds max position size per token
2. Maintains minimum cash buffer
3. Returns allocation as a JSON object with token addresses as keys and USD amounts as values
4. Uses exact USDC address: %s for cash allocation
Example format:
{
    "token_address": 1.5,
    "%s": 8.5
}`, totalSize, maxPositionSize, maxPositionPct, cashBufferPct, candidateTokens, cashTokenAddress, cashTokenAddress, cashTokenAddress)
}

func allocationRepairPrompt(malformedResponse string) string {
	return fmt.Sprintf(`The following response was expected to be a JSON object for portfolio allocations with token addresses as keys and USD amounts as values, but it is not in the correct format:
%s

Please return only a properly formatted JSON object (no extra text) in the following format:
{
    "token_address": allocated_amount,
    "USDC_ADDRESS": remaining_cash
}`, malformedResponse)
}

func feedbackPrompt(tokenInfo, history, userInput string) string {
	return fmt.Sprintf(`You are a trading recommendation assistant.
Your task is to convert the following unstructured free-form user input into a structured trading recommendation.
You will be provided with the history of your and user's previous interactions and information about the tokens to evaluate.
The recommendation should be output as a JSON object with the following keys:
- "token": a token symbol,
- "action": one of "BUY", "SELL", or "NOTHING",
- "confidence": an integer percentage (default to 100 if not specified),
- "reasoning": a brief explanation.
If the user input does not contain any actionable recommendation, output an empty JSON object: {}
Token information:
"%s"

History:
"%s"

User Input:
"%s"

Only output the JSON object, with no additional text.
{"token":"xxx", "action":"BUY", "confidence":100, "reasoning":"User provided recommendation."}`, tokenInfo, history, userInput)
}
