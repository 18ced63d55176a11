package questiongen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abhisek/qforge/internal/policy"
)

const generalKnowledge = "No reference material is available. Generate questions based on general knowledge of the topic."

const mcqTemplate = `You are an expert academic question generator for {education_level} level education. Generate {num_questions} high-quality, unique and conceptually rich multiple choice questions strictly based on the content provided.

Questions must be conceptual and analytical, and appropriate for a {education_level} curriculum.
Use the standard 4-option format: a direct question with 4 distinct answer choices. Do not use statement-based or assertion-based questions.

CONTEXT
- Education level: {education_level}
- Subject: {subject}
- Topic: {topic}
- Subtopic: {subtopic}
- Difficulty: {difficulty}
- Focus instruction: {focus_instruction}
- Question style: {question_style}
- Explanation context: {explanation_style}
- Content: {content}

Use only the subject, topic and subtopic given. Do not invent topic IDs or subtopics.

RULES
1. Question: a direct, clear question.
2. Options: exactly 4 distinct, complete answer choices of similar length. No "All of the above" or option combinations.
3. correct_answer: the exact text of one of the 4 options, never an index.
4. Explanation: why the correct answer is right and why each other option is wrong, using concepts from the content.
{user_prompt}
OUTPUT
Return only a JSON list, even for a single question:
[
  {
    "question": "Clear, direct question text",
    "options": ["First choice", "Second choice", "Third choice", "Fourth choice"],
    "correct_answer": "First choice",
    "explanation": "Why the correct answer is right and the others are wrong.",
    "metadata": {
      "topic": "{topic}",
      "subtopic": "{subtopic}",
      "difficulty": "{difficulty}"
    }
  }
]`

const descriptiveTemplate = `You are an expert examination question generator for {education_level} level students.

Generate {num_questions} {label} questions ({marks} marks, about {word_limit} words) in strict JSON format.

INPUTS
- Subject: {subject}
- Topic: {topic}
- Subtopic: {subtopic}
- Difficulty: {difficulty}
- Focus instruction: {focus_instruction}
- Question style: {question_style}
- Explanation context: {explanation_style}
- Content: {content}

REQUIREMENTS
- Questions should test {skill}.
- Answers must be {answer_shape} (about {word_limit} words).
- Include ai_answer_keywords (at most {max_keywords}) that a good answer must mention.
{user_prompt}
OUTPUT
Return only a JSON list, even for a single question:
[
  {
    "question": "{question_hint}",
    "answer": "Model answer in about {word_limit} words.",
    "marks": {marks},
    "word_limit": {word_limit},
    "metadata": {
      "topic": "{topic}",
      "subtopic": "{subtopic}",
      "difficulty": "{difficulty}",
      "question_type": "{subtype}",
      "ai_answer_keywords": ["keyword1", "keyword2", "keyword3"]
    }
  }
]`

type descriptiveStyle struct {
	label        string
	skill        string
	answerShape  string
	questionHint string
}

var descriptiveStyles = map[string]descriptiveStyle{
	SubtypeVeryShort: {
		label:        "very short answer",
		skill:        "recall and basic understanding",
		answerShape:  "concise, factual and to the point",
		questionHint: "Short, direct question requiring a brief factual answer.",
	},
	SubtypeShort: {
		label:        "short answer",
		skill:        "comprehension and application of concepts",
		answerShape:  "structured around 2-3 key points",
		questionHint: "Question requiring explanation with examples or reasoning.",
	},
	SubtypeLongEssay: {
		label:        "long essay",
		skill:        "critical analysis, synthesis and evaluation",
		answerShape:  "comprehensive, with an introduction, 4-5 points in the body and a conclusion",
		questionHint: "Analytical question requiring detailed discussion and critical evaluation.",
	},
}

// buildPrompt renders the template for the request's question type.
func buildPrompt(req Request, retrieved string, pol *policy.Policy) string {
	vars := promptVars(req, retrieved, pol)

	tmpl := mcqTemplate
	if req.QuestionType == TypeDescriptive {
		tmpl = descriptiveTemplate
		style, ok := descriptiveStyles[req.DescriptiveSubtype]
		if !ok {
			style = descriptiveStyles[SubtypeShort]
		}
		lim, ok := Subtypes[req.DescriptiveSubtype]
		if !ok {
			lim = SubtypeLimits{Marks: 5, WordLimit: 200, MaxKeywords: MaxAnswerKeywords}
		}
		vars = append(vars,
			"{label}", style.label,
			"{skill}", style.skill,
			"{answer_shape}", style.answerShape,
			"{question_hint}", style.questionHint,
			"{marks}", strconv.Itoa(lim.Marks),
			"{word_limit}", strconv.Itoa(lim.WordLimit),
			"{max_keywords}", strconv.Itoa(lim.MaxKeywords),
			"{subtype}", req.DescriptiveSubtype,
		)
	}
	return strings.NewReplacer(vars...).Replace(tmpl)
}

func promptVars(req Request, retrieved string, pol *policy.Policy) []string {
	level := "undergraduate"
	var style policy.PromptCustomization
	if pol != nil {
		if pol.EducationLevel != "" {
			level = pol.EducationLevel
		}
		style = pol.Prompts
	}
	if strings.EqualFold(level, "college") {
		level = "undergraduate"
	}
	focus := orDefault(style.FocusInstruction, fmt.Sprintf("Generate %s level questions", req.Difficulty))
	explain := orDefault(style.ExplanationStyle, "relating to "+req.Topic)
	phrasing := orDefault(style.QuestionStyle, "about "+req.Topic)

	if strings.TrimSpace(retrieved) == "" {
		retrieved = generalKnowledge
	}
	user := ""
	if req.UserPrompt != "" {
		user = "\nADDITIONAL INSTRUCTIONS\n" + req.UserPrompt + "\n"
	}

	return []string{
		"{education_level}", level,
		"{num_questions}", strconv.Itoa(req.NumQuestions),
		"{subject}", req.Subject,
		"{topic}", req.Topic,
		"{subtopic}", req.Subtopic,
		"{difficulty}", req.Difficulty,
		"{focus_instruction}", focus,
		"{question_style}", phrasing,
		"{explanation_style}", explain,
		"{user_prompt}", user,
		"{content}", retrieved,
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
