package extract

// Prompt and reply texts for both intake stages.

const (
	intakeSystemPrompt = "You are a helpful assistant. Your task is to parse the given user response into " +
		"a json object inside a ```json fenced block with exactly these keys: name, age, mobile, gender, " +
		"address, occupation, familyHistory. If you don't find a value in the user's message, leave that " +
		"field as an empty string. Do not invent values."

	intakeUpdatePrompt = `You are a helpful assistant. Your task is to update the user's personal details.
Previous data: %s
Chat history:
%s
Update the following fields if new information is provided: name, age, mobile, gender, address, occupation, familyHistory.
Return only the updated fields as a json object inside a ` + "```json" + ` fenced block.`

	diagnosisPrompt = `You are a thorough medical assistant conducting a detailed patient interview.
Your task is to systematically gather information and prepare a detailed medical report for the doctor.

Patient Information: %s
Chat history:
%s

Follow this structured approach:
1. First, identify and confirm all reported symptoms
2. For each symptom, ask about onset, duration, frequency, severity (1-10), triggers and alleviating factors
3. Ask about associated symptoms
4. Inquire about medical history, medications, and allergies
5. Consider lifestyle factors and recent changes
6. Specifically ask about family history related to current symptoms

Return a json object inside a ` + "```json" + ` fenced block with fields:
1. diagnose_complete (yes/no)
2. symptoms (detailed list of identified symptoms with their characteristics)
3. possible_diagnoses (list of potential diagnoses in order of likelihood)
4. confidence_level (object mapping each diagnosis to a percentage)
5. next_question (specific question to narrow down the diagnosis)
6. red_flags (any concerning symptoms that need immediate attention)
7. can_diagnose (yes/no - whether enough information is available for a diagnosis)
8. doctor_summary (detailed summary for the doctor)
9. family_history_related (yes/no - whether there is family history related to current symptoms)`
)

const (
	// OnboardingPrompt opens every new session.
	OnboardingPrompt = "Give us your personal details. Eg: I'm Mani, 21 Male. i'm currently working as a developer at Aegion."

	// SymptomIntakePrompt opens the diagnosis stage. It is never produced by the model.
	SymptomIntakePrompt = `I'll help you with your medical concerns. Let's start with a detailed assessment of your symptoms.

Please tell me:
1. What is your main symptom or concern?
2. When did it first start?
3. How severe is it on a scale of 1-10?
4. Is it constant or does it come and go?
5. Have you noticed any triggers that make it worse?

Please provide as much detail as possible about your symptoms.`

	intakeCompleteReply = "Thank you for providing all your personal details!\n\n" + SymptomIntakePrompt

	intakeFirstParseReply  = "I couldn't parse your details. Please try again with the format: I'm [Name], [Age] [Gender]. I'm currently working as [Occupation] at [Company]."
	intakeUpdateParseReply = "I couldn't understand your response. Please try again."
	unavailableReply       = "I'm having trouble reaching the assistant right now. Please try again in a moment."

	describeSymptomsReply = "I need more information to help diagnose your condition. Could you please describe your symptoms in detail, including when they started and how they affect you?"

	softeningClause   = "I need more information to better understand your condition. "
	redFlagPrefix     = "\n\n⚠️ Important: "
	familyHistoryAsk  = "\n\nDo you have any family history of similar symptoms or conditions?"
	diagnosisThanks   = "Thank you for providing detailed information about your symptoms. "
	familyHistoryNote = "\n\nI've noted that you have a family history of similar conditions. This information will be helpful for the doctor's assessment."
	diagnosisClosing  = "\n\nThe doctor has received your case and will contact you soon for further consultation."
)
