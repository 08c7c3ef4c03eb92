package fedex

// Request/response shapes of the FedEx REST API, trimmed to the fields we read.

type apiAddress struct {
	StreetLines         []string `json:"streetLines,omitempty"`
	City                string   `json:"city,omitempty"`
	StateOrProvinceCode string   `json:"stateOrProvinceCode,omitempty"`
	PostalCode          string   `json:"postalCode,omitempty"`
	CountryCode         string   `json:"countryCode"`
	Residential         bool     `json:"residential,omitempty"`
}

type apiContact struct {
	PersonName  string `json:"personName,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type apiParty struct {
	Contact *apiContact `json:"contact,omitempty"`
	Address apiAddress  `json:"address"`
}

type apiWeight struct {
	Units string  `json:"units"`
	Value float64 `json:"value"`
}

type apiDimensions struct {
	Length int    `json:"length"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Units  string `json:"units"`
}

type apiPackage struct {
	GroupPackageCount int            `json:"groupPackageCount,omitempty"`
	Weight            apiWeight      `json:"weight"`
	Dimensions        *apiDimensions `json:"dimensions,omitempty"`
}

type accountNumber struct {
	Value string `json:"value"`
}

// address resolve

type addressToValidate struct {
	Address apiAddress `json:"address"`
}

type resolveRequest struct {
	AddressesToValidate []addressToValidate `json:"addressesToValidate"`
}

type resolveResponse struct {
	Output struct {
		ResolvedAddresses []struct {
			StreetLinesToken    []string `json:"streetLinesToken"`
			City                string   `json:"city"`
			StateOrProvinceCode string   `json:"stateOrProvinceCode"`
			PostalCode          string   `json:"postalCode"`
			CountryCode         string   `json:"countryCode"`
			Attributes          struct {
				Resolved string `json:"Resolved"`
			} `json:"attributes"`
		} `json:"resolvedAddresses"`
		Alerts []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"alerts"`
	} `json:"output"`
}

// postal code

type postalRequest struct {
	CarrierCode         string `json:"carrierCode"`
	CountryCode         string `json:"countryCode"`
	StateOrProvinceCode string `json:"stateOrProvinceCode,omitempty"`
	PostalCode          string `json:"postalCode"`
	ShipDate            string `json:"shipDate"`
}

type postalResponse struct {
	Output struct {
		CleanedPostalCode   string `json:"cleanedPostalCode"`
		CountryCode         string `json:"countryCode"`
		StateOrProvinceCode string `json:"stateOrProvinceCode"`
		LocationDescription []struct {
			LocationID string `json:"locationId"`
		} `json:"locationDescriptions"`
	} `json:"output"`
}

// availability

type availabilityRequest struct {
	RequestedShipment struct {
		Shipper                   apiParty     `json:"shipper"`
		Recipients                []apiParty   `json:"recipients"`
		ShipDateStamp             string       `json:"shipDatestamp"`
		RequestedPackageLineItems []apiPackage `json:"requestedPackageLineItems"`
	} `json:"requestedShipment"`
	CarrierCodes []string `json:"carrierCodes"`
}

type availabilityResponse struct {
	Output struct {
		PackageOptions []struct {
			ServiceType struct {
				Key         string `json:"key"`
				DisplayText string `json:"displayText"`
			} `json:"serviceType"`
		} `json:"packageOptions"`
	} `json:"output"`
}

// rates

type rateShipment struct {
	Shipper                   apiParty     `json:"shipper"`
	Recipient                 apiParty     `json:"recipient"`
	PickupType                string       `json:"pickupType"`
	ServiceType               string       `json:"serviceType,omitempty"`
	RateRequestType           []string     `json:"rateRequestType"`
	RequestedPackageLineItems []apiPackage `json:"requestedPackageLineItems"`
}

type rateRequest struct {
	AccountNumber     accountNumber `json:"accountNumber"`
	RequestedShipment rateShipment  `json:"requestedShipment"`
}

type rateResponse struct {
	Output struct {
		RateReplyDetails []struct {
			ServiceType          string `json:"serviceType"`
			ServiceName          string `json:"serviceName"`
			RatedShipmentDetails []struct {
				RateType       string  `json:"rateType"`
				TotalNetCharge float64 `json:"totalNetCharge"`
				Currency       string  `json:"currency"`
			} `json:"ratedShipmentDetails"`
			Commit struct {
				DateDetail struct {
					DayFormat string `json:"dayFormat"`
				} `json:"dateDetail"`
				TransitDays struct {
					MinimumTransitTime string `json:"minimumTransitTime"`
				} `json:"transitDays"`
			} `json:"commit"`
		} `json:"rateReplyDetails"`
	} `json:"output"`
}

// ship

type labelSpecification struct {
	ImageType      string `json:"imageType"`
	LabelStockType string `json:"labelStockType"`
}

type shipRequestedShipment struct {
	Shipper                   apiParty           `json:"shipper"`
	Recipients                []apiParty         `json:"recipients"`
	ServiceType               string             `json:"serviceType"`
	PackagingType             string             `json:"packagingType"`
	PickupType                string             `json:"pickupType"`
	ShippingChargesPayment    map[string]string  `json:"shippingChargesPayment"`
	LabelSpecification        labelSpecification `json:"labelSpecification"`
	RequestedPackageLineItems []apiPackage       `json:"requestedPackageLineItems"`
}

type shipRequest struct {
	LabelResponseOptions string                `json:"labelResponseOptions"`
	AccountNumber        accountNumber         `json:"accountNumber"`
	RequestedShipment    shipRequestedShipment `json:"requestedShipment"`
}

type shipResponse struct {
	Output struct {
		TransactionShipments []struct {
			MasterTrackingNumber string `json:"masterTrackingNumber"`
			PieceResponses       []struct {
				TrackingNumber   string `json:"trackingNumber"`
				PackageDocuments []struct {
					URL          string `json:"url"`
					EncodedLabel string `json:"encodedLabel"`
				} `json:"packageDocuments"`
			} `json:"pieceResponses"`
			CompletedShipmentDetail struct {
				OperationalDetail struct {
					DeliveryDate string `json:"deliveryDate"`
				} `json:"operationalDetail"`
			} `json:"completedShipmentDetail"`
		} `json:"transactionShipments"`
	} `json:"output"`
}

// track

type trackingNumberInfo struct {
	TrackingNumber string `json:"trackingNumber"`
}

type trackingInfo struct {
	TrackingNumberInfo trackingNumberInfo `json:"trackingNumberInfo"`
}

type trackRequest struct {
	IncludeDetailedScans bool           `json:"includeDetailedScans"`
	TrackingInfo         []trackingInfo `json:"trackingInfo"`
}

type trackResponse struct {
	Output struct {
		CompleteTrackResults []struct {
			TrackResults []struct {
				LatestStatusDetail struct {
					Code        string `json:"code"`
					Description string `json:"description"`
				} `json:"latestStatusDetail"`
				ScanEvents []struct {
					Date             string `json:"date"`
					EventType        string `json:"eventType"`
					EventDescription string `json:"eventDescription"`
					ScanLocation     struct {
						City                string `json:"city"`
						StateOrProvinceCode string `json:"stateOrProvinceCode"`
						CountryCode         string `json:"countryCode"`
					} `json:"scanLocation"`
				} `json:"scanEvents"`
				DateAndTimes []struct {
					Type     string `json:"type"`
					DateTime string `json:"dateTime"`
				} `json:"dateAndTimes"`
			} `json:"trackResults"`
		} `json:"completeTrackResults"`
	} `json:"output"`
}

// cancel

type cancelRequest struct {
	AccountNumber   accountNumber `json:"accountNumber"`
	TrackingNumber  string        `json:"trackingNumber"`
	DeletionControl string        `json:"deletionControl"`
}

type cancelResponse struct {
	Output struct {
		CancelledShipment bool `json:"cancelledShipment"`
	} `json:"output"`
}
