package models

const (
	ThinkTag         = `(?s)<think>.*?</think>`
	ContextSeparator = "\n---\n"
	NoneSentinel     = "None"
)

// System prompts, one per field. Every prompt forbids guessing and names the
// sentinel the model must answer with when the text is silent.
var SystemPrompts = map[Field]string{
	FieldDOI: "You are an expert at extracting DOIs from scientific papers. " +
		"Look for DOI patterns like '10.1234/example', 'doi:10.1234/example', or 'https://doi.org/10.1234/example'. " +
		"Extract ONLY the DOI number (starting with '10.') if it is explicitly present in the text. " +
		"Never guess or complete a DOI from memory. " +
		"If no DOI is found, respond with exactly: 'None'",
	FieldTitle: "You are an expert at identifying scientific paper titles. " +
		"Look for the main title, which is usually the most prominent heading at the beginning. " +
		"Extract ONLY the main title exactly as written, not subtitles, author names, or journal names. " +
		"Never invent a title. " +
		"If no clear title is found, respond with exactly: 'None'",
	FieldDataStatement: "You are an expert at finding data availability statements in scientific papers. " +
		"Look for explicit statements about data availability, data access, data sharing, or where data can be found. " +
		"Common phrases include 'data are available', 'data deposited', 'supplementary data', 'data accessible at'. " +
		"Return an EXACT QUOTED SPAN from the provided Text, preserving wording and punctuation. Do NOT paraphrase. " +
		"If no data availability statement is found, respond with exactly: 'None'",
	FieldCodeStatement: "You are an expert at finding code availability statements in scientific papers. " +
		"Look for explicit statements about code availability, software access, repository links, or scripts. " +
		"Common phrases include 'code available', 'source code', 'GitHub', 'repository', 'software available'. " +
		"Return an EXACT QUOTED SPAN from the provided Text, preserving wording and punctuation. Do NOT paraphrase. " +
		"If no code availability statement is found, respond with exactly: 'None'",
	FieldDataLicense: "Extract ONLY explicit data sharing license text (for example 'CC BY 4.0' or 'CC0') if it is present in the text. " +
		"Do not infer a license from the journal or the repository. " +
		"Return 'None' if absent.",
	FieldCodeLicense: "Extract ONLY explicit code or software license text (for example 'MIT', 'GPL-3.0', 'Apache 2.0') if it is present in the text. " +
		"Do not infer a license from the repository host. " +
		"Return 'None' if absent.",
	FieldDataLinks: "Extract ONLY explicit links (full URLs) to data repositories or datasets that appear in the text. " +
		"Return comma-separated links or 'None'.",
	FieldCodeLinks: "Extract ONLY explicit links (full URLs) to code repositories or software archives that appear in the text. " +
		"Return comma-separated links or 'None'.",
}

// UserPromptTemplate wraps the retrieved context; %s are the context and the field label.
const UserPromptTemplate = "Text:\n%s\n\nReturn ONLY the %s or 'None'."

var FieldLabels = map[Field]string{
	FieldDOI:           "DOI",
	FieldTitle:         "title",
	FieldDataStatement: "data availability statement",
	FieldCodeStatement: "code availability statement",
	FieldDataLicense:   "data sharing license",
	FieldCodeLicense:   "code license",
	FieldDataLinks:     "comma-separated data links",
	FieldCodeLinks:     "comma-separated code links",
}

// RetrievalQueries are the similarity queries issued against the document
// index for each field.
var RetrievalQueries = map[Field][]string{
	FieldDOI: {
		"DOI digital object identifier citation reference",
		"https doi.org 10. journal article identifier",
		"front matter citation DOI",
	},
	FieldTitle: {
		"title abstract introduction paper study research",
	},
	FieldDataStatement: {
		"data availability access supplementary materials dataset repository accessibility archived deposited Dryad Zenodo Figshare OSF",
		"availability of data and materials availability of supporting data",
		"data deposited archived repository data accessible at upon request",
	},
	FieldCodeStatement: {
		"code availability software scripts GitHub GitLab Bitbucket repository programming analysis source reproducibility",
		"source code available software availability repository link",
	},
	FieldDataLicense: {
		"data sharing license Creative Commons CC BY MIT GPL Apache proprietary dataset license",
	},
	FieldCodeLicense: {
		"code license software license MIT GPL Apache BSD Creative Commons proprietary licensing",
	},
	FieldDataLinks: {
		"data repository dataset download link URL supplementary materials",
	},
	FieldCodeLinks: {
		"GitHub repository code software scripts programming source",
	},
}

// AvailabilitySystemPrompt drives the structured (JSON) availability mode.
const AvailabilitySystemPrompt = "You extract data and code availability statements from scientific papers. " +
	"Use ONLY the provided contexts. " +
	"If information exists, copy the exact sentence(s) into raw_quote and provide a clean_statement that repairs hyphenation and spacing but keeps the same meaning. " +
	"If information is missing, respond with \"none\"."

const AvailabilityUserTemplate = `CONTEXTS:
%s
%s

Respond with strict JSON:
{
  "data": { "verdict": "present|absent", "raw_quote": "... or none", "clean_statement": "... or none", "links": ["..."], "confidence": 0-1 },
  "code": { "verdict": "present|absent", "raw_quote": "... or none", "clean_statement": "... or none", "links": ["..."], "confidence": 0-1 }
}
Rules:
- raw_quote must be contiguous text copied exactly from a single provided context.
- clean_statement may fix broken words or spacing but must not introduce new facts.
- Links must appear in the same context as the raw_quote.
- Use absolute URLs only; omit ORCID or unrelated references.
- If unavailable, set verdict "absent", raw_quote "none", clean_statement "none", and links [].`
