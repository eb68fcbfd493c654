package protocol

// NewIQ starts an IQ stanza addressed to the service.
func NewIQ(iqType, to string) *Stanza {
	return &Stanza{Kind: KindIQ, Type: iqType, To: to}
}

// NewResult builds the success response to request.
func NewResult(request *Stanza) *Stanza {
	return &Stanza{
		Kind: KindIQ,
		ID:   request.ID,
		Type: TypeResult,
		From: request.To,
		To:   request.From,
	}
}

// NewErrorResponse builds an error response to request.
func NewErrorResponse(request *Stanza, errType, condition, text string) *Stanza {
	resp := NewResult(request)
	resp.Type = TypeError
	resp.Error = &Error{
		Type:      errType,
		Condition: condition,
		Text:      text,
	}
	return resp
}

// NewPubSub returns an empty pubsub body.
func NewPubSub() *PubSub {
	return &PubSub{Namespace: NSPubSub}
}

// NewSubmitForm returns a submit data form whose hidden FORM_TYPE field is
// set to formType.
func NewSubmitForm(formType string) *Form {
	return &Form{
		Namespace: NSDataForms,
		Type:      FormSubmit,
		Fields: []Field{
			{Var: FieldFormType, Type: FieldTypeHidden, Values: []string{formType}},
		},
	}
}

// With appends a single-valued field to the form and returns it.
func (f *Form) With(name, value string) *Form {
	f.Fields = append(f.Fields, Field{Var: name, Values: []string{value}})
	return f
}

// NewNotification builds a pubsub event message carrying entries published
// to node.
func NewNotification(from, to, node string, headers []Header, entries ...PayloadEntry) *Stanza {
	return &Stanza{
		Kind: KindMessage,
		From: from,
		To:   to,
		Event: &Event{
			Namespace: NSPubSubEvent,
			Items:     &Items{Node: node, Entries: entries},
		},
		Headers: headers,
	}
}
