package hmm

func sampleExamples() []Example {
	return []Example{
		NewExample("the dog ran", "DET N V"),
		NewExample("a dog sat", "DET N V"),
	}
}

func corpusExamples() []Example {
	sentences := [][2]string{
		{"the dog ran", "DET N V"},
		{"a dog sat", "DET N V"},
		{"the cat sat on the mat", "DET N V P DET N"},
		{"a big dog ran home", "DET ADJ N V N"},
		{"dogs run", "N V"},
		{"the old man saw a cat", "DET ADJ N V DET N"},
		{"we saw the dog", "PRO V DET N"},
		{"she ran to the park", "PRO V P DET N"},
		{"the park is big", "DET N V ADJ"},
		{"a cat ran to the dog", "DET N V P DET N"},
	}
	examples := make([]Example, len(sentences))
	for i, s := range sentences {
		examples[i] = NewExample(s[0], s[1])
	}
	return examples
}
