package receipts

import "strings"

// buildReceiptPrompt constructs the fixed instructional prompt sent with the
// receipt image. The category list and hints come from the taxonomy so the
// model only suggests categories the mapping can resolve.
func buildReceiptPrompt(mapping *CategoryMapping) string {
	var b strings.Builder

	b.WriteString("Analyze this receipt image and extract the following information in JSON format:\n")
	b.WriteString("- Total amount (just the number, e.g. 25.99)\n")
	b.WriteString("- Date (ISO format, e.g. \"2023-10-15T00:00:00Z\")\n")
	b.WriteString("- Description or items purchased (brief summary, e.g. \"Coffee and pastry\")\n")
	b.WriteString("- Merchant/store name (e.g. \"Starbucks\")\n")
	b.WriteString("- Suggested category (choose the most appropriate from: ")
	b.WriteString(strings.Join(mapping.IDs(), ","))
	b.WriteString(")\n")
	for _, cat := range mapping.Categories() {
		b.WriteString("  - " + cat.ID + ": " + cat.Hint + "\n")
	}

	b.WriteString("\nOnly respond with valid JSON in this exact format:\n")
	b.WriteString("{\n")
	b.WriteString("  \"amount\": number,\n")
	b.WriteString("  \"date\": \"ISO date string\",\n")
	b.WriteString("  \"description\": \"string\",\n")
	b.WriteString("  \"merchantName\": \"string\",\n")
	b.WriteString("  \"category\": \"string\"\n")
	b.WriteString("}\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("If it's not a receipt or information is unclear, return an empty object {}\n")

	return b.String()
}
