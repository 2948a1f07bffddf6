package recommender

var ExtractorSysPrompt = `You are a specialized text-to-JSON converter for shopping queries. Your sole purpose is to read what a shopper asks for and return the product attributes stated in it.

Your output must strictly follow this JSON schema:
{
    "category": string or null,      # one of "Bags, Wallets & Belts", "Footwear", "Toys", "Clothing and Accessories"
    "product_name": string,          # mandatory, main object without adjectives: shoes, t-shirt, pants, wallet
    "subject": string or null,       # who it is for: men, women, boy, girl, kid, unisex
    "color": string or null,         # red, green, blue, multicolor
    "brand": string or null          # only if a brand is named
}

Follow these processing rules precisely:
1. Answer only from information in the query, never guess
2. If an attribute is not mentioned, set its value to null
3. category must be exactly one of the four values above or null
4. Ignore any additional information such as price or delivery wishes
5. Return ONLY the valid JSON object without explanations, introductions, or additional text`

// ComposerPrompt is rendered with input, dialect, top_k, table_info and the
// schema column names.
var ComposerPrompt = `Information:
{{.input}}
Formulate one {{.dialect}} query that retrieves records relevant to the information above.
Guidelines:
1. Information and columns for WHERE clause filtering, only for the information listed above:
    - Category --> {{.category_column}} = '<category>'. Only use one of: {{.categories}}.
    - Product name --> {{.title_column}}: Ex. WHERE {{.title_column}} ILIKE '%t-shirt%'.
    - Subject --> {{.details_column}}: Ex. WHERE {{.details_column}}::text ILIKE '%kid%'. (Must follow the structure from the example)
    - Color --> {{.details_column}}: Ex. WHERE {{.details_column}}::text ILIKE '%purple%'. (Must follow the structure from the example, separate from Subject)
    - Brand --> {{.brand_column}}: Ex. WHERE {{.brand_column}} ILIKE '%brand%'.
2. Columns to select: {{.columns}}
3. Combine conditions with AND. Do not filter on anything else.
4. Return at most {{.top_k}} rows with LIMIT.
5. Table information:
{{.table_info}}
SQL example:
SELECT {{.columns}} FROM {{.table}}
WHERE {{.category_column}} = 'Footwear'
    AND {{.title_column}} ILIKE '%shoe%'
    AND {{.details_column}}::text ILIKE '%women%'
    AND {{.details_column}}::text ILIKE '%purple%'
LIMIT {{.top_k}}

Output: SQL query only without explanation, markdown or additional text`

var SynthesizerPrompt = `Given the following user question and the corresponding SQL result, identify up to {{.max_items}} items from the result that are the most relevant to the question.

The SQL result consists of a list of tuples where each tuple contains an item ID, a product name, and a URL.

Question: {{.question}}
SQL Result: {{.result}}

Answer with a list of the most relevant items (maximum {{.max_items}}), formatted as:
- Product name: [product name], URL: [product URL]

Do not explain or describe the data, just provide the list of relevant items based on the question.`
